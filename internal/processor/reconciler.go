package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hiring-go/internal/constants"
	"hiring-go/internal/logger"
	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"
	"hiring-go/internal/tracing"
	"hiring-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var reconcilerTracer = otel.Tracer("hiring-go/processor/reconciler")

// Reconciler 重复简历处置执行器。批次内条目彼此独立，
// 单个条目失败不影响其他条目，批次整体总是产出结果集合。
type Reconciler struct {
	db    *storage.MySQL
	store storage.ObjectStorage    // 可为nil，此时不写对象存储
	sink  storage.NotificationSink // 可为nil，此时不发布事件
	cache StageCache               // 可为nil，此时默认阶段直查数据库
	cfg   ReconcilerConfig
}

// ReconcilerConfig 处置执行器的事件路由配置
type ReconcilerConfig struct {
	ReconcileRoutingKey string
	CandidateRoutingKey string
}

// NewReconciler 创建处置执行器
func NewReconciler(db *storage.MySQL, store storage.ObjectStorage, sink storage.NotificationSink, cache StageCache, cfg ReconcilerConfig) *Reconciler {
	if cfg.ReconcileRoutingKey == "" {
		cfg.ReconcileRoutingKey = "hiring.reconcile"
	}
	if cfg.CandidateRoutingKey == "" {
		cfg.CandidateRoutingKey = "hiring.candidate"
	}
	return &Reconciler{db: db, store: store, sink: sink, cache: cache, cfg: cfg}
}

// ParseMode 校验处置模式。整批共用一个模式，未知模式属于请求级错误。
func ParseMode(mode string) (types.SuggestedAction, error) {
	switch types.SuggestedAction(mode) {
	case types.ActionSkip, types.ActionMerge, types.ActionReplace, types.ActionCreateNew:
		return types.SuggestedAction(mode), nil
	case "":
		return "", NewValidationError("parse_mode", "mode 不能为空")
	default:
		return "", NewValidationError("parse_mode", fmt.Sprintf("未知的处置模式: %s", mode))
	}
}

// ProcessBatch 执行一批处置。仅顶层校验失败返回错误；
// 条目级失败进入响应的errors集合，调用方总是收到200。
func (r *Reconciler) ProcessBatch(ctx context.Context, req types.ProcessRequest) (*types.ProcessResponse, error) {
	ctx, span := reconcilerTracer.Start(ctx, "Reconciler.ProcessBatch")
	defer span.End()

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if len(req.Duplicates) == 0 {
		err := NewValidationError("process_batch", "duplicates 不能为空")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("reconcile.mode", string(mode)),
		attribute.Int("reconcile.batch_size", len(req.Duplicates)),
	)

	resp := &types.ProcessResponse{
		Processed: make([]types.ReconcileResult, 0, len(req.Duplicates)),
		Errors:    make([]types.ReconcileError, 0),
	}

	for _, item := range req.Duplicates {
		result, itemErr := r.processItem(ctx, item, mode, req.JobID)
		if itemErr != nil {
			tracing.RecordErrorWithInfo(span, itemErr, tracing.ErrorTypeInternal,
				attribute.String("reconcile.candidate_id", item.CandidateID),
				attribute.String("reconcile.file_name", item.FileName),
			)
			logger.Ctx(ctx).Warn().
				Err(itemErr).
				Str("candidate_id", item.CandidateID).
				Str("file_name", item.FileName).
				Msg("处置条目失败")
			resp.Errors = append(resp.Errors, types.ReconcileError{
				FileName:    item.FileName,
				CandidateID: item.CandidateID,
				Error:       itemErr.Error(),
				Code:        CodeOf(itemErr),
			})
			continue
		}
		resp.Processed = append(resp.Processed, *result)
		r.publishReconcileEvent(ctx, result.CandidateID, result.Action, item.FileHash)
	}

	resp.Summary = types.ProcessSummary{
		TotalProcessed: len(resp.Processed),
		TotalErrors:    len(resp.Errors),
		Mode:           mode,
	}
	return resp, nil
}

// processItem 处置单个条目
func (r *Reconciler) processItem(ctx context.Context, item types.ReconcileItem, mode types.SuggestedAction, jobID *string) (*types.ReconcileResult, error) {
	if mode == types.ActionSkip {
		return &types.ReconcileResult{
			CandidateID: item.CandidateID,
			FileName:    item.FileName,
			Action:      types.ActionSkip,
			Detail:      "按请求跳过，不做任何修改",
		}, nil
	}

	if item.CandidateID == "" && mode != types.ActionCreateNew {
		return nil, NewValidationError("process_item", "candidate_id 不能为空")
	}

	var existing *models.Candidate
	if item.CandidateID != "" {
		var err error
		existing, err = r.db.GetCandidateByID(ctx, item.CandidateID)
		if err != nil {
			return nil, NewTransactionError("process_item", err.Error())
		}
		if existing == nil {
			return nil, NewNotFoundError("process_item", fmt.Sprintf("候选人 %s 不存在", item.CandidateID))
		}
	}

	// 阶段保护：已进入非默认阶段的候选人只允许补全，不允许替换或另建
	if mode != types.ActionMerge && existing != nil {
		guarded, err := r.inNonDefaultStage(ctx, existing)
		if err != nil {
			return nil, NewTransactionError("process_item", err.Error())
		}
		if guarded {
			return nil, NewValidationError("process_item",
				fmt.Sprintf("候选人 %s 已进入招聘阶段，只允许 merge 操作", existing.CandidateID))
		}
	}

	switch mode {
	case types.ActionMerge:
		return r.merge(ctx, existing, item)
	case types.ActionReplace:
		return r.replace(ctx, existing, item, jobID)
	case types.ActionCreateNew:
		return r.createNew(ctx, item, jobID)
	default:
		return nil, NewValidationError("process_item", fmt.Sprintf("未知的处置模式: %s", mode))
	}
}

// inNonDefaultStage 判断候选人是否处于非默认阶段
func (r *Reconciler) inNonDefaultStage(ctx context.Context, c *models.Candidate) (bool, error) {
	if c.StageID == nil || *c.StageID == "" {
		return false, nil
	}
	defaultID, err := r.defaultStageID(ctx)
	if err != nil {
		return false, err
	}
	if defaultID != "" && defaultID == *c.StageID {
		return false, nil
	}
	return true, nil
}

// defaultStageID 返回默认阶段ID，优先读缓存，未命中回源数据库并回填。
// 系统没有默认阶段时返回空串。
func (r *Reconciler) defaultStageID(ctx context.Context) (string, error) {
	if r.cache != nil {
		id, err := r.cache.GetDefaultStageID(ctx)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("读取默认阶段缓存失败，回源数据库")
		} else if id != "" {
			return id, nil
		}
	}

	stage, err := r.db.GetDefaultStage(ctx)
	if err != nil {
		return "", err
	}
	if stage == nil {
		return "", nil
	}
	if r.cache != nil {
		if err := r.cache.SetDefaultStageID(ctx, stage.StageID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("回填默认阶段缓存失败")
		}
	}
	return stage.StageID, nil
}

// merge 只补全已有记录的空字段，已有内容永不被覆盖
func (r *Reconciler) merge(ctx context.Context, existing *models.Candidate, item types.ReconcileItem) (*types.ReconcileResult, error) {
	if item.NewData == nil {
		return nil, NewValidationError("merge", "merge 操作需要 new_data")
	}

	updates := buildMergeUpdates(existing, item.NewData)
	if len(updates) == 0 {
		return &types.ReconcileResult{
			CandidateID: existing.CandidateID,
			FileName:    item.FileName,
			Action:      types.ActionMerge,
			Detail:      "已有记录完整，无字段需要补全",
		}, nil
	}

	err := r.db.DB().WithContext(ctx).Model(&models.Candidate{}).
		Where("candidate_id = ?", existing.CandidateID).
		Updates(updates).Error
	if err != nil {
		return nil, NewTransactionError("merge", err.Error())
	}

	return &types.ReconcileResult{
		CandidateID: existing.CandidateID,
		FileName:    item.FileName,
		Action:      types.ActionMerge,
		Detail:      fmt.Sprintf("补全了 %d 个缺失字段", len(updates)),
	}, nil
}

// buildMergeUpdates 收集merge可以补全的字段：仅当旧值为空且新值非空
func buildMergeUpdates(existing *models.Candidate, data *types.ParsedResult) map[string]interface{} {
	updates := make(map[string]interface{})

	if existing.FullName == "" && data.FullName != "" {
		updates["full_name"] = data.FullName
	}
	if existing.Email == "" && data.Email != "" {
		updates["email"] = data.Email
	}
	if existing.Gender == "" && data.Gender != "" {
		updates["gender"] = data.Gender
	}
	if existing.BirthDate == nil && data.Birthdate != "" {
		if d, err := parseBirthdate(data.Birthdate); err == nil {
			updates["birth_date"] = d
		}
	}
	if existing.Position == "" && data.Position != "" {
		updates["position"] = data.Position
	}
	if existing.Experience == "" && data.Experience != "" {
		updates["experience"] = data.Experience
	}
	if len(existing.Skills) == 0 && len(data.Skills) > 0 {
		if j, err := models.StringSliceToJSON(data.Skills); err == nil {
			updates["skills"] = j
		}
	}
	if existing.CVSummary == "" && data.CVSummary != "" {
		updates["cv_summary"] = data.CVSummary
	}
	if existing.FitScore == nil && data.FitScore != nil {
		updates["fit_score"] = *data.FitScore
	}
	if len(existing.Strengths) == 0 && len(data.Strengths) > 0 {
		if j, err := models.StringSliceToJSON(data.Strengths); err == nil {
			updates["strengths"] = j
		}
	}
	if len(existing.Weaknesses) == 0 && len(data.Weaknesses) > 0 {
		if j, err := models.StringSliceToJSON(data.Weaknesses); err == nil {
			updates["weaknesses"] = j
		}
	}
	if existing.Evaluation == "" && data.Evaluation != "" {
		updates["evaluation"] = data.Evaluation
	}
	if existing.PipelineStatus == "" && data.PipelineStatus != "" {
		updates["pipeline_status"] = data.PipelineStatus
	}
	if (existing.StageID == nil || *existing.StageID == "") && data.StageID != nil && *data.StageID != "" {
		updates["stage_id"] = *data.StageID
	}
	return updates
}

// replace 用新数据覆盖已有记录，新数据缺失的字段回退保留旧值。
// 携带新文件内容时同时写入对象存储并登记上传记录。
func (r *Reconciler) replace(ctx context.Context, existing *models.Candidate, item types.ReconcileItem, jobID *string) (*types.ReconcileResult, error) {
	if item.NewData == nil {
		return nil, NewValidationError("replace", "replace 操作需要 new_data")
	}

	updates := buildReplaceUpdates(existing, item.NewData)

	// 新文件先写对象存储；失败时保留候选人原有的简历链接，不阻断处置
	hasFile := len(item.FileContent) > 0 && item.FileHash != ""
	var fileURL string
	var storeErr error
	if hasFile {
		fileURL, storeErr = r.putCVFile(ctx, jobID, item.FileHash, item.FileName, item.FileContent)
		if storeErr == nil && fileURL != "" {
			updates["cv_link"] = fileURL
		}
	}

	err := r.db.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Candidate{}).
				Where("candidate_id = ?", existing.CandidateID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		if hasFile {
			return upsertCVUpload(tx, existing.CandidateID, jobID, item.FileName, item.FileHash, fileURL, storeErr == nil)
		}
		return nil
	})
	if err != nil {
		return nil, NewTransactionError("replace", err.Error())
	}

	detail := fmt.Sprintf("用新简历覆盖了 %d 个字段", len(updates))
	if storeErr != nil {
		detail += "；新文件写入对象存储失败，保留原简历链接"
	}
	return &types.ReconcileResult{
		CandidateID: existing.CandidateID,
		FileName:    item.FileName,
		Action:      types.ActionReplace,
		Detail:      detail,
	}, nil
}

// upsertCVUpload 替换时就地更新候选人已关联的上传记录，
// 没有记录时才新建一条。
func upsertCVUpload(tx *gorm.DB, candidateID string, jobID *string, fileName, fileHash, fileURL string, stored bool) error {
	status := "stored"
	if !stored {
		status = "store_failed"
	}

	var upload models.CVUpload
	err := tx.Where("candidate_id = ?", candidateID).Order("created_at DESC").First(&upload).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, err := newCVUpload(candidateID, jobID, fileName, fileHash, fileURL)
		if err != nil {
			return err
		}
		created.Status = status
		return tx.Create(created).Error
	}
	if err != nil {
		return err
	}

	changes := map[string]interface{}{
		"file_name": fileName,
		"file_hash": fileHash,
		"status":    status,
	}
	if fileURL != "" {
		changes["file_url"] = fileURL
	}
	return tx.Model(&models.CVUpload{}).Where("upload_id = ?", upload.UploadID).Updates(changes).Error
}

// buildReplaceUpdates 收集replace要覆盖的字段：新值非空时覆盖，否则回退保留旧值
func buildReplaceUpdates(existing *models.Candidate, data *types.ParsedResult) map[string]interface{} {
	updates := make(map[string]interface{})

	if data.FullName != "" {
		updates["full_name"] = data.FullName
	}
	if data.Email != "" {
		updates["email"] = data.Email
	}
	if data.Gender != "" {
		updates["gender"] = data.Gender
	}
	if data.Birthdate != "" {
		if d, err := parseBirthdate(data.Birthdate); err == nil {
			updates["birth_date"] = d
		}
	}
	if data.Position != "" {
		updates["position"] = data.Position
	}
	if data.Experience != "" {
		updates["experience"] = data.Experience
	}
	if len(data.Skills) > 0 {
		if j, err := models.StringSliceToJSON(data.Skills); err == nil {
			updates["skills"] = j
		}
	}
	if data.CVSummary != "" {
		updates["cv_summary"] = data.CVSummary
	}
	if data.FitScore != nil {
		updates["fit_score"] = *data.FitScore
	}
	if len(data.Strengths) > 0 {
		if j, err := models.StringSliceToJSON(data.Strengths); err == nil {
			updates["strengths"] = j
		}
	}
	if len(data.Weaknesses) > 0 {
		if j, err := models.StringSliceToJSON(data.Weaknesses); err == nil {
			updates["weaknesses"] = j
		}
	}
	if data.Evaluation != "" {
		updates["evaluation"] = data.Evaluation
	}
	if data.PipelineStatus != "" {
		updates["pipeline_status"] = data.PipelineStatus
	}
	if data.StageID != nil && *data.StageID != "" {
		updates["stage_id"] = *data.StageID
	}
	return updates
}

// createNew 为新岗位建立独立候选人。候选人与上传记录在同一事务中写入，
// 任一失败则整体回滚，不会留下孤儿记录。
func (r *Reconciler) createNew(ctx context.Context, item types.ReconcileItem, jobID *string) (*types.ReconcileResult, error) {
	if item.NewData == nil {
		return nil, NewValidationError("create_new", "create_new 操作需要 new_data")
	}

	candidate, err := r.IngestCandidate(ctx, item.NewData, jobID, item.FileName, item.FileHash, item.FileContent, "reconcile")
	if err != nil {
		return nil, err
	}

	return &types.ReconcileResult{
		CandidateID: candidate.CandidateID,
		FileName:    item.FileName,
		Action:      types.ActionCreateNew,
		Detail:      "已为目标岗位建立独立候选人记录",
	}, nil
}

// IngestCandidate 建立新候选人：分配默认阶段、写入对象存储、
// 在同一事务中落库候选人与上传记录，最后发布创建事件。
// 上传链路与处置链路共用此入口。
func (r *Reconciler) IngestCandidate(ctx context.Context, data *types.ParsedResult, jobID *string, fileName, fileHash string, content []byte, source string) (*models.Candidate, error) {
	candidate, err := NewCandidateFromParsed(data, jobID)
	if err != nil {
		return nil, NewTransactionError("ingest_candidate", err.Error())
	}

	// 新建候选人落入默认阶段（如果存在）
	defaultID, err := r.defaultStageID(ctx)
	if err != nil {
		return nil, NewTransactionError("ingest_candidate", err.Error())
	}
	if defaultID != "" {
		candidate.StageID = &defaultID
	}

	var fileURL string
	var storeErr error
	if len(content) > 0 && fileHash != "" {
		fileURL, storeErr = r.putCVFile(ctx, jobID, fileHash, fileName, content)
	}
	candidate.CVLink = fileURL

	err = r.db.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(candidate).Error; err != nil {
			return err
		}
		if fileHash != "" {
			upload, err := newCVUpload(candidate.CandidateID, jobID, fileName, fileHash, fileURL)
			if err != nil {
				return err
			}
			if storeErr != nil {
				upload.Status = "store_failed"
			}
			return tx.Create(upload).Error
		}
		return nil
	})
	if err != nil {
		return nil, NewTransactionError("ingest_candidate", err.Error())
	}

	r.publishCandidateEvent(ctx, candidate.CandidateID, jobID, source)

	return candidate, nil
}

// putCVFile 写入对象存储并返回URL。失败记录警告并把错误交给调用方降级处理。
func (r *Reconciler) putCVFile(ctx context.Context, jobID *string, fileHash, fileName string, content []byte) (string, error) {
	if r.store == nil {
		return "", nil
	}
	objectKey := BuildCVObjectKey(jobID, fileHash, fileName)
	url, err := r.store.PutCVFile(ctx, objectKey, content, constants.AllowedCVContentType)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("object_key", objectKey).Msg("简历文件写入对象存储失败")
		return "", err
	}
	return url, nil
}

// publishReconcileEvent 发布处置事件，失败不影响处置结果
func (r *Reconciler) publishReconcileEvent(ctx context.Context, candidateID string, action types.SuggestedAction, fileHash string) {
	if r.sink == nil {
		return
	}
	event := storage.NewReconcileEvent(candidateID, action, fileHash)
	if err := r.sink.PublishEvent(ctx, r.cfg.ReconcileRoutingKey+"."+string(action), event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("candidate_id", candidateID).Msg("发布处置事件失败")
	}
}

// publishCandidateEvent 发布候选人创建事件，失败不影响处置结果
func (r *Reconciler) publishCandidateEvent(ctx context.Context, candidateID string, jobID *string, source string) {
	if r.sink == nil {
		return
	}
	event := storage.NewCandidateEvent("candidate.created", candidateID, jobID, source)
	if err := r.sink.PublishEvent(ctx, r.cfg.CandidateRoutingKey+".created", event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("candidate_id", candidateID).Msg("发布候选人事件失败")
	}
}

// NewCandidateFromParsed 将解析结果转换为新的候选人记录。
// 流水线状态默认强制为 pending，解析结果显式给出状态时除外。
func NewCandidateFromParsed(data *types.ParsedResult, jobID *string) (*models.Candidate, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成候选人ID失败: %w", err)
	}

	status := constants.StatusPending
	if data.PipelineStatus != "" {
		status = data.PipelineStatus
	}

	candidate := &models.Candidate{
		CandidateID:    id.String(),
		FullName:       data.FullName,
		Email:          data.Email,
		Gender:         data.Gender,
		Position:       data.Position,
		Experience:     data.Experience,
		CVSummary:      data.CVSummary,
		FitScore:       data.FitScore,
		Evaluation:     data.Evaluation,
		PipelineStatus: status,
		JobID:          jobID,
		StageID:        data.StageID,
	}

	if data.Birthdate != "" {
		if d, err := parseBirthdate(data.Birthdate); err == nil {
			candidate.BirthDate = d
		}
	}
	if len(data.Skills) > 0 {
		if j, err := models.StringSliceToJSON(data.Skills); err == nil {
			candidate.Skills = j
		}
	}
	if len(data.Strengths) > 0 {
		if j, err := models.StringSliceToJSON(data.Strengths); err == nil {
			candidate.Strengths = j
		}
	}
	if len(data.Weaknesses) > 0 {
		if j, err := models.StringSliceToJSON(data.Weaknesses); err == nil {
			candidate.Weaknesses = j
		}
	}
	return candidate, nil
}

// newCVUpload 构造上传记录
func newCVUpload(candidateID string, jobID *string, fileName, fileHash, fileURL string) (*models.CVUpload, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成上传记录ID失败: %w", err)
	}
	return &models.CVUpload{
		UploadID:    id.String(),
		CandidateID: candidateID,
		JobID:       jobID,
		FileName:    fileName,
		FileHash:    fileHash,
		FileURL:     fileURL,
		Status:      "stored",
	}, nil
}

// parseBirthdate 解析YYYY-MM-DD格式的出生日期
func parseBirthdate(s string) (*datatypes.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("出生日期格式不合法: %s", s)
	}
	d := datatypes.Date(t)
	return &d, nil
}
