package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"testing"

	"hiring-go/internal/api/handler"
	"hiring-go/internal/config"
	"hiring-go/internal/processor"
	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"
	"hiring-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubParser struct{}

func (stubParser) ParseFiles(ctx context.Context, files []processor.FileInput, job *types.JobMatchContext) ([]*types.ParsedResult, error) {
	out := make([]*types.ParsedResult, 0, len(files))
	for i := range files {
		out = append(out, &types.ParsedResult{FullName: files[i].FileName, Email: files[i].FileName + "@example.com"})
	}
	return out, nil
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*server.Hertz, *storage.MySQL) {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	db, err := storage.NewMySQLWithDB(gormDB)
	require.NoError(t, err)

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}

	reconciler := processor.NewReconciler(db, nil, nil, nil, processor.ReconcilerConfig{})
	cvHandler, err := handler.NewCVHandler(cfg, db, nil, stubParser{}, reconciler)
	require.NoError(t, err)
	candidateHandler, err := handler.NewCandidateHandler(db)
	require.NoError(t, err)
	jobHandler, err := handler.NewJobHandler(db)
	require.NoError(t, err)
	stageHandler, err := handler.NewStageHandler(db, nil, nil, "")
	require.NoError(t, err)
	pipelineHandler, err := handler.NewPipelineHandler(db)
	require.NoError(t, err)
	activityHandler, err := handler.NewActivityHandler(db)
	require.NoError(t, err)

	h := server.Default()
	RegisterRoutes(h, cfg, Handlers{
		CV:        cvHandler,
		Candidate: candidateHandler,
		Job:       jobHandler,
		Stage:     stageHandler,
		Pipeline:  pipelineHandler,
		Activity:  activityHandler,
	})
	return h, db
}

func performJSON(t *testing.T, h *server.Hertz, method, path string, payload interface{}) *ut.ResponseRecorder {
	t.Helper()
	var body *ut.Body
	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = &ut.Body{Body: bytes.NewReader(data), Len: len(data)}
	}
	return ut.PerformRequest(h.Engine, method, path, body, headers...)
}

func TestHealthRoute(t *testing.T) {
	h, _ := newTestServer(t, nil)
	w := ut.PerformRequest(h.Engine, "GET", "/health", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
}

func TestProcessRouteValidation(t *testing.T) {
	h, _ := newTestServer(t, nil)

	// 缺少mode
	w := performJSON(t, h, "POST", "/api/v1/cv/process", map[string]interface{}{
		"duplicates": []map[string]string{{"candidate_id": "x"}},
	})
	assert.Equal(t, 400, w.Result().StatusCode())

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(w.Result().Body(), &errBody))
	assert.Equal(t, "VALIDATION", errBody["code"])

	// 空批次
	w = performJSON(t, h, "POST", "/api/v1/cv/process", map[string]interface{}{"mode": "merge"})
	assert.Equal(t, 400, w.Result().StatusCode())

	// 未知模式
	w = performJSON(t, h, "POST", "/api/v1/cv/process", map[string]interface{}{
		"mode":       "upsert",
		"duplicates": []map[string]string{{"candidate_id": "x"}},
	})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestProcessRouteMixedBatchReturns200(t *testing.T) {
	h, db := newTestServer(t, nil)
	require.NoError(t, db.DB().Create(&models.Candidate{CandidateID: "cand-1", PipelineStatus: "pending"}).Error)

	w := performJSON(t, h, "POST", "/api/v1/cv/process", types.ProcessRequest{
		Mode: types.ActionMerge,
		Duplicates: []types.ReconcileItem{
			{CandidateID: "cand-1", NewData: &types.ParsedResult{Email: "fill@example.com"}},
			{CandidateID: "cand-missing", NewData: &types.ParsedResult{}},
		},
	})
	require.Equal(t, 200, w.Result().StatusCode(), "条目级失败不改变批次状态码")

	var resp types.ProcessResponse
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	assert.Len(t, resp.Processed, 1)
	assert.Len(t, resp.Errors, 1)
	assert.Equal(t, "NOT_FOUND", resp.Errors[0].Code)
}

func TestUploadRouteRejectsMissingFiles(t *testing.T) {
	h, _ := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("job_id", "job-1"))
	require.NoError(t, mw.Close())

	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/cv/upload",
		&ut.Body{Body: bytes.NewReader(buf.Bytes()), Len: buf.Len()},
		ut.Header{Key: "Content-Type", Value: mw.FormDataContentType()})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestUploadRouteRejectsNonPDF(t *testing.T) {
	h, _ := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "resume.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("纯文本"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/cv/upload",
		&ut.Body{Body: bytes.NewReader(buf.Bytes()), Len: buf.Len()},
		ut.Header{Key: "Content-Type", Value: mw.FormDataContentType()})
	assert.Equal(t, 400, w.Result().StatusCode())

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(w.Result().Body(), &errBody))
	assert.Equal(t, "VALIDATION", errBody["code"])
}

func TestJobCRUDRoutes(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := performJSON(t, h, "POST", "/api/v1/jobs", handler.JobRequest{Title: "Go工程师"})
	require.Equal(t, 200, w.Result().StatusCode())

	var job models.Job
	require.NoError(t, json.Unmarshal(w.Result().Body(), &job))
	require.NotEmpty(t, job.JobID)

	w = ut.PerformRequest(h.Engine, "GET", "/api/v1/jobs/"+job.JobID, nil)
	assert.Equal(t, 200, w.Result().StatusCode())

	w = ut.PerformRequest(h.Engine, "GET", "/api/v1/jobs/no-such-job", nil)
	assert.Equal(t, 404, w.Result().StatusCode())

	// 缺少标题
	w = performJSON(t, h, "POST", "/api/v1/jobs", handler.JobRequest{})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestStageRoutesDefaultProtection(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := performJSON(t, h, "POST", "/api/v1/stages", handler.StageRequest{Name: "简历筛选", IsDefault: true})
	require.Equal(t, 200, w.Result().StatusCode())
	var stage models.Stage
	require.NoError(t, json.Unmarshal(w.Result().Body(), &stage))

	// 第二个默认阶段冲突
	w = performJSON(t, h, "POST", "/api/v1/stages", handler.StageRequest{Name: "另一个默认", IsDefault: true})
	assert.Equal(t, 409, w.Result().StatusCode())

	// 默认阶段不可删除
	w = ut.PerformRequest(h.Engine, "DELETE", "/api/v1/stages/"+stage.StageID, nil)
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestInterviewRouteConflict(t *testing.T) {
	h, _ := newTestServer(t, nil)

	at := "2026-09-01T14:00:00Z"
	w := performJSON(t, h, "POST", "/api/v1/interviews", handler.InterviewRequest{InterviewDate: at})
	require.Equal(t, 200, w.Result().StatusCode())

	// 同一时间的第二场面试被拒绝
	w = performJSON(t, h, "POST", "/api/v1/interviews", handler.InterviewRequest{InterviewDate: at})
	assert.Equal(t, 409, w.Result().StatusCode())

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(w.Result().Body(), &errBody))
	assert.Equal(t, "CONFLICT", errBody["code"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	h, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = "secret-key"
	})

	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/jobs", nil)
	assert.Equal(t, 401, w.Result().StatusCode(), "缺少API密钥被拒绝")

	w = ut.PerformRequest(h.Engine, "GET", "/api/v1/jobs", nil,
		ut.Header{Key: "X-API-Key", Value: "secret-key"})
	assert.Equal(t, 200, w.Result().StatusCode())

	// 健康检查不受鉴权限制
	w = ut.PerformRequest(h.Engine, "GET", "/health", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
}
