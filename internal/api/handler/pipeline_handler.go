package handler

import (
	"context"
	"fmt"

	"hiring-go/internal/processor"
	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"

	"github.com/gofrs/uuid/v5"
)

// PipelineHandler 招聘流水线管理的HTTP处理器
type PipelineHandler struct {
	db *storage.MySQL
}

// NewPipelineHandler 创建流水线处理器
func NewPipelineHandler(db *storage.MySQL) (*PipelineHandler, error) {
	if db == nil {
		return nil, fmt.Errorf("数据库连接不能为空")
	}
	return &PipelineHandler{db: db}, nil
}

// PipelineRequest 流水线创建请求
type PipelineRequest struct {
	Name  string  `json:"name"`
	JobID *string `json:"job_id,omitempty"`
}

// PipelineView 流水线及其有序阶段
type PipelineView struct {
	models.HiringPipeline
	Stages []models.Stage `json:"stages"`
}

// HandleListPipelines 查询流水线列表，每条流水线带有序阶段集合
func (h *PipelineHandler) HandleListPipelines(ctx context.Context) ([]PipelineView, error) {
	pipelines, err := h.db.ListPipelines(ctx)
	if err != nil {
		return nil, processor.NewTransactionError("list_pipelines", err.Error())
	}

	views := make([]PipelineView, 0, len(pipelines))
	for _, p := range pipelines {
		stages, err := h.db.ListStagesOrdered(ctx, p.PipelineID)
		if err != nil {
			return nil, processor.NewTransactionError("list_pipelines", err.Error())
		}
		views = append(views, PipelineView{HiringPipeline: p, Stages: stages})
	}
	return views, nil
}

// HandleCreatePipeline 创建流水线，至多关联一个岗位
func (h *PipelineHandler) HandleCreatePipeline(ctx context.Context, req PipelineRequest) (*models.HiringPipeline, error) {
	if req.Name == "" {
		return nil, processor.NewValidationError("create_pipeline", "name 不能为空")
	}
	if req.JobID != nil {
		job, err := h.db.GetJobByID(ctx, *req.JobID)
		if err != nil {
			return nil, processor.NewTransactionError("create_pipeline", err.Error())
		}
		if job == nil {
			return nil, processor.NewNotFoundError("create_pipeline", fmt.Sprintf("岗位 %s 不存在", *req.JobID))
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, processor.NewTransactionError("create_pipeline", err.Error())
	}
	pipeline := &models.HiringPipeline{
		PipelineID: id.String(),
		Name:       req.Name,
		JobID:      req.JobID,
	}
	if err := h.db.CreatePipeline(ctx, pipeline); err != nil {
		return nil, processor.NewTransactionError("create_pipeline", err.Error())
	}
	return pipeline, nil
}
