package handler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"hiring-go/internal/config"
	"hiring-go/internal/constants"
	"hiring-go/internal/logger"
	"hiring-go/internal/processor"
	"hiring-go/internal/storage"
	"hiring-go/internal/tracing"
	"hiring-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var cvHandlerTracer = otel.Tracer("hiring-go/api/handler/cv")

// HashCache 简历指纹的快速去重缓存。数据库仍是最终判定依据，
// 缓存命中在数据库不可读时作为降级信号使用。
type HashCache interface {
	CheckCVHashExists(ctx context.Context, jobID *string, hashHex string) (bool, error)
	AddCVHash(ctx context.Context, jobID *string, hashHex string) error
}

// CVHandler 简历上传与重复处置的HTTP处理器
type CVHandler struct {
	cfg        *config.Config
	db         *storage.MySQL
	cache      HashCache // 可为nil，快速去重检查降级为直查数据库
	classifier *processor.DuplicateClassifier
	parser     processor.DocumentParser
	reconciler *processor.Reconciler
}

// NewCVHandler 创建简历处理器
func NewCVHandler(cfg *config.Config, db *storage.MySQL, cache HashCache, parser processor.DocumentParser, reconciler *processor.Reconciler) (*CVHandler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if db == nil {
		return nil, fmt.Errorf("数据库连接不能为空")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("处置执行器不能为空")
	}
	return &CVHandler{
		cfg:        cfg,
		db:         db,
		cache:      cache,
		classifier: processor.NewDuplicateClassifier(db),
		parser:     parser,
		reconciler: reconciler,
	}, nil
}

// UploadedFile 上传请求中的单个简历文件
type UploadedFile struct {
	FileName    string
	ContentType string
	Size        int64
	Content     []byte
}

// uploadItem 上传批次中单个文件的处理状态
type uploadItem struct {
	file    UploadedFile
	hash    string
	hashDup *types.DuplicateCandidate // 指纹重复判定，nil表示指纹未命中
	failed  bool
}

// HandleCVUpload 处理一批简历上传：校验、指纹分类、LLM解析、邮箱分类、
// 新候选人入库。校验失败在任何副作用发生之前拒绝整个请求；
// 解析失败时返回错误，但响应体仍携带已完成的指纹重复判定。
func (h *CVHandler) HandleCVUpload(ctx context.Context, jobID string, files []UploadedFile) (*types.CVUploadResponse, error) {
	ctx, span := cvHandlerTracer.Start(ctx, "CVHandler.HandleCVUpload")
	defer span.End()
	span.SetAttributes(attribute.Int("upload.file_count", len(files)))

	if len(files) == 0 {
		return nil, processor.NewValidationError("cv_upload", "至少需要上传一个文件")
	}
	maxSize := h.cfg.MaxFileSize(constants.MaxUploadSizeBytes)
	for _, f := range files {
		if err := validateUploadFile(f, maxSize); err != nil {
			return nil, err
		}
	}

	// 校验岗位并准备解析上下文
	var jobRef *string
	var jobCtx *types.JobMatchContext
	if jobID != "" {
		job, err := h.db.GetJobByID(ctx, jobID)
		if err != nil {
			return nil, processor.NewTransactionError("cv_upload", err.Error())
		}
		if job == nil {
			return nil, processor.NewNotFoundError("cv_upload", fmt.Sprintf("岗位 %s 不存在", jobID))
		}
		jobRef = &jobID
		jobCtx = &types.JobMatchContext{
			JobID:        job.JobID,
			Title:        job.Title,
			Description:  job.Description,
			Requirements: job.Requirements,
		}
	}

	resp := &types.CVUploadResponse{
		NewCandidates: make([]types.NewCandidateResult, 0),
		Duplicates:    make([]types.UploadedDuplicate, 0),
	}
	resp.Summary.TotalFiles = len(files)

	// 指纹分类。最终判定以数据库为准；数据库不可读而缓存已确认
	// 见过该指纹时，降级为无快照的重复条目而不是整个文件失败。
	items := make([]*uploadItem, 0, len(files))
	cacheHits := 0
	for _, f := range files {
		item := &uploadItem{file: f, hash: processor.HashFileContent(f.Content)}
		cacheHit := h.checkHashCache(ctx, jobRef, item.hash)
		if cacheHit {
			cacheHits++
		}

		dup, err := h.classifier.ClassifyHash(ctx, item.hash, jobRef)
		switch {
		case err != nil && cacheHit:
			logger.Ctx(ctx).Warn().Err(err).Str("file_name", f.FileName).
				Msg("指纹重复判定失败，按缓存命中降级为重复条目")
			item.hashDup = &types.DuplicateCandidate{MatchType: types.MatchTypeHash}
		case err != nil:
			logger.Ctx(ctx).Warn().Err(err).Str("file_name", f.FileName).Msg("指纹重复判定失败")
			item.failed = true
			resp.Summary.FailedCount++
		default:
			item.hashDup = dup
		}
		items = append(items, item)
	}
	span.SetAttributes(attribute.Int("upload.hash_cache_hits", cacheHits))

	// 所有未失败的文件整批送解析，指纹重复的文件也解析以便给出新旧对比
	inputs := make([]processor.FileInput, 0, len(items))
	toParse := make([]*uploadItem, 0, len(items))
	for _, item := range items {
		if item.failed {
			continue
		}
		inputs = append(inputs, processor.FileInput{FileName: item.file.FileName, Content: item.file.Content})
		toParse = append(toParse, item)
	}

	var results []*types.ParsedResult
	if len(inputs) > 0 {
		var err error
		results, err = h.parser.ParseFiles(ctx, inputs, jobCtx)
		if err != nil {
			// 解析失败整批不落库，但指纹判定结果仍然返回给调用方
			for _, item := range toParse {
				if item.hashDup != nil {
					resp.Duplicates = append(resp.Duplicates, h.buildDuplicate(item, nil, jobRef))
				} else {
					resp.Summary.FailedCount++
				}
			}
			resp.Summary.DuplicateCount = len(resp.Duplicates)
			return resp, processor.NewExternalServiceError("cv_upload", err.Error())
		}
	}

	for i, item := range toParse {
		parsed := results[i]

		if item.hashDup != nil {
			resp.Duplicates = append(resp.Duplicates, h.buildDuplicate(item, parsed, jobRef))
			continue
		}

		// 指纹未命中时退回邮箱匹配，每个文件至多归入一种重复类型
		emailDup, err := h.classifier.ClassifyEmail(ctx, parsed.Email, jobRef)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("file_name", item.file.FileName).Msg("邮箱重复判定失败")
			resp.Summary.FailedCount++
			continue
		}
		if emailDup != nil {
			item.hashDup = emailDup
			resp.Duplicates = append(resp.Duplicates, h.buildDuplicate(item, parsed, jobRef))
			continue
		}

		candidate, err := h.reconciler.IngestCandidate(ctx, parsed, jobRef, item.file.FileName, item.hash, item.file.Content, "upload")
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("file_name", item.file.FileName).Msg("新候选人入库失败")
			resp.Summary.FailedCount++
			continue
		}
		h.rememberHash(ctx, jobRef, item.hash)
		logger.Ctx(ctx).Info().
			Str("candidate_id", candidate.CandidateID).
			Str("full_name", tracing.SafeAttributeValue("full_name", candidate.FullName, tracing.DefaultMaxLength)).
			Str("email", tracing.SafeAttributeValue("email", candidate.Email, tracing.DefaultMaxLength)).
			Msg("新候选人入库")

		resp.NewCandidates = append(resp.NewCandidates, types.NewCandidateResult{
			CandidateID: candidate.CandidateID,
			FileName:    item.file.FileName,
			FullName:    candidate.FullName,
			Email:       candidate.Email,
			FitScore:    candidate.FitScore,
			CVLink:      candidate.CVLink,
		})
	}

	resp.Summary.NewCount = len(resp.NewCandidates)
	resp.Summary.DuplicateCount = len(resp.Duplicates)
	return resp, nil
}

// buildDuplicate 组装重复条目及处置建议。parsed为nil时给出仅凭旧记录的初步建议；
// 仅有缓存命中、已有记录读不到时给出保守的跳过建议。
func (h *CVHandler) buildDuplicate(item *uploadItem, parsed *types.ParsedResult, jobRef *string) types.UploadedDuplicate {
	dup := types.UploadedDuplicate{
		FileName:  item.file.FileName,
		FileHash:  item.hash,
		MatchType: item.hashDup.MatchType,
		Existing:  item.hashDup.Existing,
		NewData:   parsed,
	}
	if item.hashDup.Existing == nil {
		dup.SuggestedAction = types.ActionSkip
		dup.Reason = "缓存命中相同文件指纹，但已有记录暂不可读，建议先跳过"
		return dup
	}
	suggestion := processor.Suggest(item.hashDup.Existing, jobRef, parsed)
	dup.SuggestedAction = suggestion.SuggestedAction
	dup.Reason = suggestion.Reason
	return dup
}

// checkHashCache 查询指纹缓存集合。缓存不可用或未命中都继续走数据库判定。
func (h *CVHandler) checkHashCache(ctx context.Context, jobRef *string, hash string) bool {
	if h.cache == nil {
		return false
	}
	exists, err := h.cache.CheckCVHashExists(ctx, jobRef, hash)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("指纹缓存检查失败，降级为直查数据库")
		return false
	}
	return exists
}

// rememberHash 把新入库简历的指纹写入缓存集合，失败不影响上传结果
func (h *CVHandler) rememberHash(ctx context.Context, jobRef *string, hash string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.AddCVHash(ctx, jobRef, hash); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("file_hash", hash).Msg("写入指纹缓存失败")
	}
}

// validateUploadFile 校验单个上传文件的扩展名、MIME类型和大小
func validateUploadFile(f UploadedFile, maxSize int64) error {
	if strings.ToLower(filepath.Ext(f.FileName)) != constants.AllowedCVExtension {
		return processor.NewValidationError("cv_upload",
			fmt.Sprintf("文件 %s 不是PDF文件，仅支持 %s 格式", f.FileName, constants.AllowedCVExtension))
	}
	if f.ContentType != constants.AllowedCVContentType {
		return processor.NewValidationError("cv_upload",
			fmt.Sprintf("文件 %s 的内容类型 %q 不被支持，需要 %s", f.FileName, f.ContentType, constants.AllowedCVContentType))
	}
	size := f.Size
	if size == 0 {
		size = int64(len(f.Content))
	}
	if size > maxSize {
		return processor.NewValidationError("cv_upload",
			fmt.Sprintf("文件 %s 大小超过上限 %d 字节", f.FileName, maxSize))
	}
	return nil
}
