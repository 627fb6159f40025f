package handler

import (
	"context"
	"fmt"
	"time"

	"hiring-go/internal/constants"
	"hiring-go/internal/processor"
	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"

	"github.com/gofrs/uuid/v5"
)

// ActivityHandler 候选人活动与面试安排的HTTP处理器
type ActivityHandler struct {
	db *storage.MySQL
}

// NewActivityHandler 创建活动处理器
func NewActivityHandler(db *storage.MySQL) (*ActivityHandler, error) {
	if db == nil {
		return nil, fmt.Errorf("数据库连接不能为空")
	}
	return &ActivityHandler{db: db}, nil
}

// ActivityRequest 活动创建与更新请求
type ActivityRequest struct {
	CandidateID string  `json:"candidate_id"`
	StageID     *string `json:"stage_id,omitempty"`
	Title       string  `json:"title"`
	Kind        string  `json:"kind,omitempty"`
	StartDate   string  `json:"start_date,omitempty"` // RFC3339
	EndDate     string  `json:"end_date,omitempty"`   // RFC3339
	Status      string  `json:"status,omitempty"`
	Result      string  `json:"result,omitempty"` // pass|fail|pending
	Notes       string  `json:"notes,omitempty"`
}

// HandleCreateActivity 为候选人创建活动记录
func (h *ActivityHandler) HandleCreateActivity(ctx context.Context, req ActivityRequest) (*models.CandidateActivity, error) {
	if req.CandidateID == "" {
		return nil, processor.NewValidationError("create_activity", "candidate_id 不能为空")
	}
	if req.Title == "" {
		return nil, processor.NewValidationError("create_activity", "title 不能为空")
	}
	if err := validateActivityResult(req.Result); err != nil {
		return nil, err
	}

	candidate, err := h.db.GetCandidateByID(ctx, req.CandidateID)
	if err != nil {
		return nil, processor.NewTransactionError("create_activity", err.Error())
	}
	if candidate == nil {
		return nil, processor.NewNotFoundError("create_activity", fmt.Sprintf("候选人 %s 不存在", req.CandidateID))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, processor.NewTransactionError("create_activity", err.Error())
	}
	activity := &models.CandidateActivity{
		ActivityID:  id.String(),
		CandidateID: req.CandidateID,
		StageID:     req.StageID,
		Title:       req.Title,
		Kind:        req.Kind,
		Status:      req.Status,
		Result:      req.Result,
		Notes:       req.Notes,
	}
	if activity.Status == "" {
		activity.Status = "scheduled"
	}
	if activity.Result == "" {
		activity.Result = constants.ActivityResultPending
	}
	if req.StartDate != "" {
		t, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			return nil, processor.NewValidationError("create_activity", "start_date 格式不合法，需要RFC3339")
		}
		activity.StartDate = &t
	}
	if req.EndDate != "" {
		t, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			return nil, processor.NewValidationError("create_activity", "end_date 格式不合法，需要RFC3339")
		}
		activity.EndDate = &t
	}

	if err := h.db.CreateActivity(ctx, activity); err != nil {
		return nil, processor.NewTransactionError("create_activity", err.Error())
	}
	return activity, nil
}

// HandleUpdateActivity 更新活动记录
func (h *ActivityHandler) HandleUpdateActivity(ctx context.Context, activityID string, req ActivityRequest) (*models.CandidateActivity, error) {
	if activityID == "" {
		return nil, processor.NewValidationError("update_activity", "activity_id 不能为空")
	}
	if err := validateActivityResult(req.Result); err != nil {
		return nil, err
	}
	existing, err := h.db.GetActivityByID(ctx, activityID)
	if err != nil {
		return nil, processor.NewTransactionError("update_activity", err.Error())
	}
	if existing == nil {
		return nil, processor.NewNotFoundError("update_activity", fmt.Sprintf("活动 %s 不存在", activityID))
	}

	updates := make(map[string]interface{})
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Kind != "" {
		updates["kind"] = req.Kind
	}
	if req.StageID != nil {
		updates["stage_id"] = *req.StageID
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if req.Result != "" {
		updates["result"] = req.Result
	}
	if req.Notes != "" {
		updates["notes"] = req.Notes
	}
	if req.StartDate != "" {
		t, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			return nil, processor.NewValidationError("update_activity", "start_date 格式不合法，需要RFC3339")
		}
		updates["start_date"] = t
	}
	if req.EndDate != "" {
		t, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			return nil, processor.NewValidationError("update_activity", "end_date 格式不合法，需要RFC3339")
		}
		updates["end_date"] = t
	}

	if err := h.db.UpdateActivity(ctx, activityID, updates); err != nil {
		return nil, processor.NewTransactionError("update_activity", err.Error())
	}
	updated, err := h.db.GetActivityByID(ctx, activityID)
	if err != nil || updated == nil {
		return nil, processor.NewTransactionError("update_activity", "读取更新后的活动失败")
	}
	return updated, nil
}

// InterviewRequest 面试安排创建请求
type InterviewRequest struct {
	ActivityID    *string `json:"activity_id,omitempty"`
	InterviewDate string  `json:"interview_date"` // RFC3339
	MeetingLink   string  `json:"meeting_link,omitempty"`
	Location      string  `json:"location,omitempty"`
	Confirmed     bool    `json:"confirmed,omitempty"`
}

// HandleCreateInterview 创建面试安排。同一日期时间全局只允许一场面试。
func (h *ActivityHandler) HandleCreateInterview(ctx context.Context, req InterviewRequest) (*models.Interview, error) {
	if req.InterviewDate == "" {
		return nil, processor.NewValidationError("create_interview", "interview_date 不能为空")
	}
	at, err := time.Parse(time.RFC3339, req.InterviewDate)
	if err != nil {
		return nil, processor.NewValidationError("create_interview", "interview_date 格式不合法，需要RFC3339")
	}

	if req.ActivityID != nil {
		activity, err := h.db.GetActivityByID(ctx, *req.ActivityID)
		if err != nil {
			return nil, processor.NewTransactionError("create_interview", err.Error())
		}
		if activity == nil {
			return nil, processor.NewNotFoundError("create_interview", fmt.Sprintf("活动 %s 不存在", *req.ActivityID))
		}
	}

	taken, err := h.db.HasInterviewAt(ctx, at)
	if err != nil {
		return nil, processor.NewTransactionError("create_interview", err.Error())
	}
	if taken {
		return nil, processor.NewConflictError("create_interview",
			fmt.Sprintf("时间 %s 已有面试安排", at.Format(time.RFC3339)))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, processor.NewTransactionError("create_interview", err.Error())
	}
	interview := &models.Interview{
		InterviewID:   id.String(),
		ActivityID:    req.ActivityID,
		InterviewDate: at,
		MeetingLink:   req.MeetingLink,
		Location:      req.Location,
		Confirmed:     req.Confirmed,
	}
	if err := h.db.CreateInterview(ctx, interview); err != nil {
		return nil, processor.NewTransactionError("create_interview", err.Error())
	}
	return interview, nil
}

// validateActivityResult 校验活动结果取值
func validateActivityResult(result string) error {
	switch result {
	case "", constants.ActivityResultPass, constants.ActivityResultFail, constants.ActivityResultPending:
		return nil
	default:
		return processor.NewValidationError("activity_result",
			fmt.Sprintf("result 取值不合法: %s，允许 pass|fail|pending", result))
	}
}
