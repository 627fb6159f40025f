package handler

import (
	"context"
	"fmt"

	"hiring-go/internal/processor"
	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"

	"github.com/gofrs/uuid/v5"
)

// JobHandler 岗位管理的HTTP处理器
type JobHandler struct {
	db *storage.MySQL
}

// NewJobHandler 创建岗位处理器
func NewJobHandler(db *storage.MySQL) (*JobHandler, error) {
	if db == nil {
		return nil, fmt.Errorf("数据库连接不能为空")
	}
	return &JobHandler{db: db}, nil
}

// JobRequest 岗位创建与更新请求
type JobRequest struct {
	Title        string `json:"title"`
	Department   string `json:"department,omitempty"`
	Description  string `json:"description,omitempty"`
	Requirements string `json:"requirements,omitempty"`
	Status       string `json:"status,omitempty"`
}

// HandleListJobs 查询岗位列表
func (h *JobHandler) HandleListJobs(ctx context.Context, status string) ([]models.Job, error) {
	jobs, err := h.db.ListJobs(ctx, status)
	if err != nil {
		return nil, processor.NewTransactionError("list_jobs", err.Error())
	}
	return jobs, nil
}

// HandleGetJob 按ID获取岗位
func (h *JobHandler) HandleGetJob(ctx context.Context, jobID string) (*models.Job, error) {
	if jobID == "" {
		return nil, processor.NewValidationError("get_job", "job_id 不能为空")
	}
	job, err := h.db.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, processor.NewTransactionError("get_job", err.Error())
	}
	if job == nil {
		return nil, processor.NewNotFoundError("get_job", fmt.Sprintf("岗位 %s 不存在", jobID))
	}
	return job, nil
}

// HandleCreateJob 创建岗位
func (h *JobHandler) HandleCreateJob(ctx context.Context, req JobRequest) (*models.Job, error) {
	if req.Title == "" {
		return nil, processor.NewValidationError("create_job", "title 不能为空")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, processor.NewTransactionError("create_job", err.Error())
	}

	job := &models.Job{
		JobID:        id.String(),
		Title:        req.Title,
		Department:   req.Department,
		Description:  req.Description,
		Requirements: req.Requirements,
		Status:       req.Status,
	}
	if job.Status == "" {
		job.Status = "active"
	}
	if err := h.db.CreateJob(ctx, job); err != nil {
		return nil, processor.NewTransactionError("create_job", err.Error())
	}
	return job, nil
}

// HandleUpdateJob 更新岗位，空字段不参与更新
func (h *JobHandler) HandleUpdateJob(ctx context.Context, jobID string, req JobRequest) (*models.Job, error) {
	if jobID == "" {
		return nil, processor.NewValidationError("update_job", "job_id 不能为空")
	}
	existing, err := h.db.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, processor.NewTransactionError("update_job", err.Error())
	}
	if existing == nil {
		return nil, processor.NewNotFoundError("update_job", fmt.Sprintf("岗位 %s 不存在", jobID))
	}

	updates := make(map[string]interface{})
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Department != "" {
		updates["department"] = req.Department
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Requirements != "" {
		updates["requirements"] = req.Requirements
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if err := h.db.UpdateJob(ctx, jobID, updates); err != nil {
		return nil, processor.NewTransactionError("update_job", err.Error())
	}

	updated, err := h.db.GetJobByID(ctx, jobID)
	if err != nil || updated == nil {
		return nil, processor.NewTransactionError("update_job", "读取更新后的岗位失败")
	}
	return updated, nil
}

// HandleDeleteJob 删除岗位
func (h *JobHandler) HandleDeleteJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return processor.NewValidationError("delete_job", "job_id 不能为空")
	}
	existing, err := h.db.GetJobByID(ctx, jobID)
	if err != nil {
		return processor.NewTransactionError("delete_job", err.Error())
	}
	if existing == nil {
		return processor.NewNotFoundError("delete_job", fmt.Sprintf("岗位 %s 不存在", jobID))
	}
	if err := h.db.DeleteJob(ctx, jobID); err != nil {
		return processor.NewTransactionError("delete_job", err.Error())
	}
	return nil
}
