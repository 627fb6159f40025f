package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"
	"hiring-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) (*Reconciler, *storage.MySQL) {
	t.Helper()
	db := newTestDB(t)
	return NewReconciler(db, nil, nil, nil, ReconcilerConfig{}), db
}

// failingObjectStore 所有写入都失败的对象存储
type failingObjectStore struct{}

func (failingObjectStore) UploadFile(ctx context.Context, objectName string, reader io.Reader, fileSize int64, contentType string) (string, error) {
	return "", fmt.Errorf("对象存储不可用")
}

func (failingObjectStore) DownloadFile(ctx context.Context, objectName string) ([]byte, error) {
	return nil, fmt.Errorf("对象存储不可用")
}

func (failingObjectStore) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "", fmt.Errorf("对象存储不可用")
}

func (failingObjectStore) DeleteFile(ctx context.Context, objectName string) error {
	return fmt.Errorf("对象存储不可用")
}

func (failingObjectStore) PutCVFile(ctx context.Context, objectKey string, content []byte, contentType string) (string, error) {
	return "", fmt.Errorf("对象存储不可用")
}

// fakeStageCache 内存版的默认阶段缓存
type fakeStageCache struct {
	id       string
	setCalls []string
}

func (f *fakeStageCache) GetDefaultStageID(ctx context.Context) (string, error) {
	return f.id, nil
}

func (f *fakeStageCache) SetDefaultStageID(ctx context.Context, stageID string) error {
	f.id = stageID
	f.setCalls = append(f.setCalls, stageID)
	return nil
}

func TestParseMode(t *testing.T) {
	for _, mode := range []string{"skip", "merge", "replace", "create_new"} {
		parsed, err := ParseMode(mode)
		require.NoError(t, err)
		require.Equal(t, types.SuggestedAction(mode), parsed)
	}

	_, err := ParseMode("")
	require.ErrorIs(t, err, ErrValidation)

	_, err = ParseMode("upsert")
	require.ErrorIs(t, err, ErrValidation)
}

func TestProcessBatchTopLevelValidation(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	_, err := r.ProcessBatch(ctx, types.ProcessRequest{Mode: "merge"})
	require.ErrorIs(t, err, ErrValidation, "空批次属于请求级错误")

	_, err = r.ProcessBatch(ctx, types.ProcessRequest{
		Mode:       "bogus",
		Duplicates: []types.ReconcileItem{{CandidateID: "x"}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestProcessBatchSkipIsNoOp(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	seedCandidate(t, db, &models.Candidate{CandidateID: "cand-1", FullName: "旧名字", PipelineStatus: "pending"})

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode:       types.ActionSkip,
		Duplicates: []types.ReconcileItem{{CandidateID: "cand-1", NewData: &types.ParsedResult{FullName: "新名字"}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)
	require.Empty(t, resp.Errors)

	after, err := db.GetCandidateByID(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "旧名字", after.FullName, "skip不应修改任何记录")
}

func TestMergeOnlyFillsEmptyFields(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	score := 70.0
	seedCandidate(t, db, &models.Candidate{
		CandidateID:    "cand-1",
		FullName:       "赵六",
		Email:          "",
		Position:       "后端工程师",
		PipelineStatus: "pending",
		FitScore:       &score,
	})

	newScore := 90.0
	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionMerge,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			NewData: &types.ParsedResult{
				FullName: "不同的名字",
				Email:    "zhaoliu@example.com",
				Position: "架构师",
				FitScore: &newScore,
				Skills:   []string{"Go", "MySQL"},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)

	after, err := db.GetCandidateByID(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "赵六", after.FullName, "已有姓名不被覆盖")
	assert.Equal(t, "后端工程师", after.Position, "已有职位不被覆盖")
	assert.Equal(t, 70.0, *after.FitScore, "已有评分不被覆盖")
	assert.Equal(t, "zhaoliu@example.com", after.Email, "空邮箱被补全")
	assert.Equal(t, []string{"Go", "MySQL"}, models.JSONToStringSlice(after.Skills), "空技能列表被补全")
}

func TestMergeCompleteRecordIsSuccess(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	score := 70.0
	seedCandidate(t, db, &models.Candidate{
		CandidateID: "cand-1", FullName: "已完整", Email: "full@example.com",
		Gender: "男", Position: "工程师", Experience: "五年", CVSummary: "摘要",
		Evaluation: "评价", PipelineStatus: "pending", FitScore: &score,
	})

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionMerge,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			NewData:     &types.ParsedResult{FullName: "新名字", Email: "new@example.com"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1, "无字段可补全也算成功")
	assert.Contains(t, resp.Processed[0].Detail, "完整")
}

func TestMergeFillsMissingStageAndKeepsStatus(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	seedCandidate(t, db, &models.Candidate{
		CandidateID: "cand-1", FullName: "有状态无阶段", PipelineStatus: "interviewing",
	})

	stageID := "stage-1"
	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionMerge,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			NewData: &types.ParsedResult{
				PipelineStatus: "pending",
				StageID:        &stageID,
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)

	after, err := db.GetCandidateByID(ctx, "cand-1")
	require.NoError(t, err)
	require.NotNil(t, after.StageID)
	assert.Equal(t, "stage-1", *after.StageID, "空阶段被补全")
	assert.Equal(t, "interviewing", after.PipelineStatus, "已有状态不被覆盖")
}

func TestReplaceOverridesStatusAndStage(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	seedCandidate(t, db, &models.Candidate{
		CandidateID: "cand-1", FullName: "被拒过", PipelineStatus: "rejected",
	})

	stageID := "stage-screening"
	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionReplace,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			NewData: &types.ParsedResult{
				FullName:       "重新投递",
				PipelineStatus: "screening",
				StageID:        &stageID,
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)

	after, err := db.GetCandidateByID(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "screening", after.PipelineStatus, "新状态覆盖旧状态")
	require.NotNil(t, after.StageID)
	assert.Equal(t, "stage-screening", *after.StageID)
}

func TestReplaceKeepsOldValueWhenNewMissing(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	score := 70.0
	seedCandidate(t, db, &models.Candidate{
		CandidateID:    "cand-1",
		FullName:       "钱七",
		Email:          "qianqi@example.com",
		Position:       "测试工程师",
		PipelineStatus: "pending",
		FitScore:       &score,
	})

	newScore := 88.0
	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionReplace,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			NewData: &types.ParsedResult{
				FullName: "钱七七",
				FitScore: &newScore,
				// Email和Position缺失
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)

	after, err := db.GetCandidateByID(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "钱七七", after.FullName, "新值覆盖旧值")
	assert.Equal(t, 88.0, *after.FitScore)
	assert.Equal(t, "qianqi@example.com", after.Email, "新数据缺失的字段回退保留旧值")
	assert.Equal(t, "测试工程师", after.Position)
}

func TestReplaceWithFileRecordsUpload(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	seedCandidate(t, db, &models.Candidate{CandidateID: "cand-1", PipelineStatus: "pending"})

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionReplace,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			FileName:    "new.pdf",
			FileHash:    "hash-new",
			FileContent: []byte("%PDF-1.4 new"),
			NewData:     &types.ParsedResult{FullName: "新名字"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)

	var uploads []models.CVUpload
	require.NoError(t, db.DB().Where("candidate_id = ?", "cand-1").Find(&uploads).Error)
	require.Len(t, uploads, 1)
	assert.Equal(t, "hash-new", uploads[0].FileHash)

	after, err := db.GetCandidateByID(ctx, "cand-1")
	require.NoError(t, err)
	assert.Empty(t, after.CVLink, "没有对象存储时记录空链接但处置仍然成功")
}

func TestReplaceUpdatesLinkedUploadRecord(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	seedCandidate(t, db, &models.Candidate{CandidateID: "cand-1", PipelineStatus: "pending"})
	seedUpload(t, db, &models.CVUpload{
		UploadID: "u-old", CandidateID: "cand-1", FileName: "old.pdf", FileHash: "hash-old",
	})

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionReplace,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			FileName:    "new.pdf",
			FileHash:    "hash-new",
			FileContent: []byte("%PDF-1.4 new"),
			NewData:     &types.ParsedResult{FullName: "新名字"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)

	var uploads []models.CVUpload
	require.NoError(t, db.DB().Where("candidate_id = ?", "cand-1").Find(&uploads).Error)
	require.Len(t, uploads, 1, "替换就地更新关联的上传记录，不新增")
	assert.Equal(t, "u-old", uploads[0].UploadID)
	assert.Equal(t, "hash-new", uploads[0].FileHash)
	assert.Equal(t, "new.pdf", uploads[0].FileName)
}

func TestReplaceStoreFailureKeepsCVLink(t *testing.T) {
	db := newTestDB(t)
	r := NewReconciler(db, failingObjectStore{}, nil, nil, ReconcilerConfig{})
	ctx := context.Background()

	seedCandidate(t, db, &models.Candidate{
		CandidateID: "cand-1", PipelineStatus: "pending", CVLink: "https://files/old.pdf",
	})

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionReplace,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			FileName:    "new.pdf",
			FileHash:    "hash-new",
			FileContent: []byte("%PDF-1.4 new"),
			NewData:     &types.ParsedResult{FullName: "新名字"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)
	assert.Contains(t, resp.Processed[0].Detail, "保留原简历链接")

	after, err := db.GetCandidateByID(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "https://files/old.pdf", after.CVLink, "写对象存储失败不得清空原有链接")

	var uploads []models.CVUpload
	require.NoError(t, db.DB().Where("candidate_id = ?", "cand-1").Find(&uploads).Error)
	require.Len(t, uploads, 1)
	assert.Equal(t, "store_failed", uploads[0].Status)
}

func TestIngestCandidateUsesStageCache(t *testing.T) {
	db := newTestDB(t)
	cache := &fakeStageCache{id: "stage-cached"}
	r := NewReconciler(db, nil, nil, cache, ReconcilerConfig{})
	ctx := context.Background()

	// 数据库中没有任何阶段，默认阶段ID来自缓存
	created, err := r.IngestCandidate(ctx, &types.ParsedResult{FullName: "缓存命中"}, nil, "", "", nil, "upload")
	require.NoError(t, err)
	require.NotNil(t, created.StageID)
	assert.Equal(t, "stage-cached", *created.StageID)
}

func TestIngestCandidateBackfillsStageCache(t *testing.T) {
	db := newTestDB(t)
	cache := &fakeStageCache{}
	r := NewReconciler(db, nil, nil, cache, ReconcilerConfig{})
	ctx := context.Background()

	require.NoError(t, db.DB().Create(&models.Stage{StageID: "stage-default", Name: "简历筛选", IsDefault: true}).Error)

	created, err := r.IngestCandidate(ctx, &types.ParsedResult{FullName: "回源"}, nil, "", "", nil, "upload")
	require.NoError(t, err)
	require.NotNil(t, created.StageID)
	assert.Equal(t, "stage-default", *created.StageID)
	assert.Equal(t, []string{"stage-default"}, cache.setCalls, "缓存未命中时用数据库结果回填")
}

func TestStageGuardBlocksNonMerge(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	// 默认阶段和一个面试阶段
	require.NoError(t, db.DB().Create(&models.Stage{StageID: "stage-default", Name: "简历筛选", IsDefault: true}).Error)
	require.NoError(t, db.DB().Create(&models.Stage{StageID: "stage-interview", Name: "技术面试"}).Error)

	stageID := "stage-interview"
	seedCandidate(t, db, &models.Candidate{
		CandidateID: "cand-1", FullName: "受保护", PipelineStatus: "pending", StageID: &stageID,
	})

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionReplace,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			NewData:     &types.ParsedResult{FullName: "覆盖尝试"},
		}},
	})
	require.NoError(t, err)
	require.Empty(t, resp.Processed)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, CodeValidation, resp.Errors[0].Code)

	after, err := db.GetCandidateByID(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "受保护", after.FullName, "阶段保护拒绝后记录不得有任何变化")

	// 同一候选人merge仍然允许
	resp, err = r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionMerge,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			NewData:     &types.ParsedResult{Email: "guarded@example.com"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)
}

func TestStageGuardAllowsDefaultStage(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, db.DB().Create(&models.Stage{StageID: "stage-default", Name: "简历筛选", IsDefault: true}).Error)

	stageID := "stage-default"
	seedCandidate(t, db, &models.Candidate{
		CandidateID: "cand-1", PipelineStatus: "pending", StageID: &stageID,
	})

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionReplace,
		Duplicates: []types.ReconcileItem{{
			CandidateID: "cand-1",
			NewData:     &types.ParsedResult{FullName: "允许替换"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1, "默认阶段的候选人不受阶段保护限制")
}

func TestCreateNewAssignsDefaultStageAndPendingStatus(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, db.DB().Create(&models.Stage{StageID: "stage-default", Name: "简历筛选", IsDefault: true}).Error)

	jobID := "job-9"
	score := 77.0
	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode:  types.ActionCreateNew,
		JobID: &jobID,
		Duplicates: []types.ReconcileItem{{
			FileName: "new.pdf",
			FileHash: "hash-n",
			NewData:  &types.ParsedResult{FullName: "新人", Email: "new@example.com", FitScore: &score},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Processed, 1)

	created, err := db.GetCandidateByID(ctx, resp.Processed[0].CandidateID)
	require.NoError(t, err)
	assert.Equal(t, "pending", created.PipelineStatus, "新记录状态强制为pending")
	require.NotNil(t, created.StageID)
	assert.Equal(t, "stage-default", *created.StageID)
	require.NotNil(t, created.JobID)
	assert.Equal(t, "job-9", *created.JobID)

	var uploads []models.CVUpload
	require.NoError(t, db.DB().Where("candidate_id = ?", created.CandidateID).Find(&uploads).Error)
	require.Len(t, uploads, 1)
}

func TestCreateNewAtomicRollback(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	// 删除上传记录表，使事务中的第二个写入必然失败
	require.NoError(t, db.DB().Migrator().DropTable(&models.CVUpload{}))

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionCreateNew,
		Duplicates: []types.ReconcileItem{{
			FileName: "x.pdf",
			FileHash: "hash-x",
			NewData:  &types.ParsedResult{FullName: "不应存在", Email: "ghost@example.com"},
		}},
	})
	require.NoError(t, err)
	require.Empty(t, resp.Processed)
	require.Len(t, resp.Errors, 1)

	var count int64
	require.NoError(t, db.DB().Model(&models.Candidate{}).Count(&count).Error)
	assert.Zero(t, count, "上传记录写入失败时候选人写入必须回滚")
}

func TestProcessBatchItemIndependence(t *testing.T) {
	r, db := newTestReconciler(t)
	ctx := context.Background()

	seedCandidate(t, db, &models.Candidate{CandidateID: "cand-ok", PipelineStatus: "pending"})

	resp, err := r.ProcessBatch(ctx, types.ProcessRequest{
		Mode: types.ActionMerge,
		Duplicates: []types.ReconcileItem{
			{CandidateID: "cand-missing", NewData: &types.ParsedResult{FullName: "A"}},
			{CandidateID: "cand-ok", NewData: &types.ParsedResult{FullName: "B"}},
			{CandidateID: "", NewData: &types.ParsedResult{FullName: "C"}},
		},
	})
	require.NoError(t, err, "条目级失败不应使整批失败")
	assert.Len(t, resp.Processed, 1)
	assert.Len(t, resp.Errors, 2)
	assert.Equal(t, 1, resp.Summary.TotalProcessed)
	assert.Equal(t, 2, resp.Summary.TotalErrors)

	codes := []string{resp.Errors[0].Code, resp.Errors[1].Code}
	assert.Contains(t, codes, CodeNotFound)
	assert.Contains(t, codes, CodeValidation)
}

func TestWorkflowErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewValidationError("op", "细节"), CodeValidation, 400},
		{NewNotFoundError("op", "细节"), CodeNotFound, 404},
		{NewExternalServiceError("op", "细节"), CodeExternalService, 502},
		{NewTransactionError("op", "细节"), CodeTransaction, 500},
		{NewConflictError("op", "细节"), CodeConflict, 409},
		{errors.New("裸错误"), CodeInternal, 500},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			assert.Equal(t, tc.code, CodeOf(tc.err))
			assert.Equal(t, tc.status, HTTPStatus(tc.err))
		})
	}

	wrapped := fmt.Errorf("外层: %w", NewValidationError("op", "内层"))
	assert.Equal(t, CodeValidation, CodeOf(wrapped), "错误链上的包装不影响识别")
}
