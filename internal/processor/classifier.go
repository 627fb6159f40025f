package processor

import (
	"context"
	"fmt"

	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"
	"hiring-go/internal/tracing"
	"hiring-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var classifierTracer = otel.Tracer("hiring-go/processor/classifier")

// DuplicateClassifier 重复简历分类器。按两个独立信号判定：
// 文件指纹（字节级重复）和解析出的邮箱（同一个人换了文件）。
// 指纹优先，两者都命中时只按指纹分类。
type DuplicateClassifier struct {
	db *storage.MySQL
}

// NewDuplicateClassifier 创建重复简历分类器
func NewDuplicateClassifier(db *storage.MySQL) *DuplicateClassifier {
	return &DuplicateClassifier{db: db}
}

// ClassifyHash 按文件指纹判定重复。命中时返回已有候选人的快照，
// 未命中返回 (nil, nil)。岗位范围与上传请求一致。
func (c *DuplicateClassifier) ClassifyHash(ctx context.Context, fileHash string, jobID *string) (*types.DuplicateCandidate, error) {
	ctx, span := classifierTracer.Start(ctx, "DuplicateClassifier.ClassifyHash")
	defer span.End()
	span.SetAttributes(attribute.String("cv.file_hash", fileHash))

	upload, err := c.db.FindCVUploadByHash(ctx, fileHash, jobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("按指纹分类失败: %w", err)
	}
	if upload == nil {
		return nil, nil
	}

	candidate, err := c.db.GetCandidateByID(ctx, upload.CandidateID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("加载指纹命中的候选人失败: %w", err)
	}
	if candidate == nil {
		// 上传记录指向的候选人已被删除，视为非重复
		return nil, nil
	}

	span.SetAttributes(attribute.String("duplicate.match_type", string(types.MatchTypeHash)))
	return &types.DuplicateCandidate{
		ExistingCandidateID: candidate.CandidateID,
		MatchType:           types.MatchTypeHash,
		Existing:            SnapshotOf(candidate),
	}, nil
}

// ClassifyEmail 按解析出的邮箱判定重复。email为空时直接返回非重复。
func (c *DuplicateClassifier) ClassifyEmail(ctx context.Context, email string, jobID *string) (*types.DuplicateCandidate, error) {
	if email == "" {
		return nil, nil
	}

	ctx, span := classifierTracer.Start(ctx, "DuplicateClassifier.ClassifyEmail")
	defer span.End()
	span.SetAttributes(attribute.String("candidate.email", tracing.MaskPII(email)))

	candidate, err := c.db.FindCandidateByEmail(ctx, email, jobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("按邮箱分类失败: %w", err)
	}
	if candidate == nil {
		return nil, nil
	}

	span.SetAttributes(attribute.String("duplicate.match_type", string(types.MatchTypeEmail)))
	return &types.DuplicateCandidate{
		ExistingCandidateID: candidate.CandidateID,
		MatchType:           types.MatchTypeEmail,
		Existing:            SnapshotOf(candidate),
	}, nil
}

// SnapshotOf 提取候选人在决策时刻的快照
func SnapshotOf(c *models.Candidate) *types.CandidateSnapshot {
	if c == nil {
		return nil
	}
	return &types.CandidateSnapshot{
		CandidateID:    c.CandidateID,
		FullName:       c.FullName,
		Email:          c.Email,
		Position:       c.Position,
		PipelineStatus: c.PipelineStatus,
		FitScore:       c.FitScore,
		JobID:          c.JobID,
		StageID:        c.StageID,
		CVLink:         c.CVLink,
	}
}
