package handler

import (
	"context"
	"fmt"
	"time"

	"hiring-go/internal/processor"
	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"
)

// CandidateHandler 候选人管理的HTTP处理器
type CandidateHandler struct {
	db *storage.MySQL
}

// NewCandidateHandler 创建候选人处理器
func NewCandidateHandler(db *storage.MySQL) (*CandidateHandler, error) {
	if db == nil {
		return nil, fmt.Errorf("数据库连接不能为空")
	}
	return &CandidateHandler{db: db}, nil
}

// CandidateListQuery 候选人列表的查询参数
type CandidateListQuery struct {
	JobID   string
	StageID string
	Status  string
	Limit   int
	Offset  int
}

// CandidateListResponse 候选人列表响应
type CandidateListResponse struct {
	Candidates []CandidateView `json:"candidates"`
	Total      int64           `json:"total"`
}

// CandidateView 候选人对外展示结构
type CandidateView struct {
	CandidateID    string   `json:"candidate_id"`
	FullName       string   `json:"full_name"`
	Email          string   `json:"email"`
	Gender         string   `json:"gender,omitempty"`
	Birthdate      string   `json:"birthdate,omitempty"`
	Position       string   `json:"position,omitempty"`
	Experience     string   `json:"experience,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	CVSummary      string   `json:"cv_summary,omitempty"`
	FitScore       *float64 `json:"fit_score,omitempty"`
	Strengths      []string `json:"strengths,omitempty"`
	Weaknesses     []string `json:"weaknesses,omitempty"`
	Evaluation     string   `json:"evaluation,omitempty"`
	PipelineStatus string   `json:"pipeline_status"`
	StageID        *string  `json:"stage_id,omitempty"`
	JobID          *string  `json:"job_id,omitempty"`
	CVLink         string   `json:"cv_link,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

// candidateView 将存储模型转换为展示结构
func candidateView(c *models.Candidate) CandidateView {
	view := CandidateView{
		CandidateID:    c.CandidateID,
		FullName:       c.FullName,
		Email:          c.Email,
		Gender:         c.Gender,
		Position:       c.Position,
		Experience:     c.Experience,
		Skills:         models.JSONToStringSlice(c.Skills),
		CVSummary:      c.CVSummary,
		FitScore:       c.FitScore,
		Strengths:      models.JSONToStringSlice(c.Strengths),
		Weaknesses:     models.JSONToStringSlice(c.Weaknesses),
		Evaluation:     c.Evaluation,
		PipelineStatus: c.PipelineStatus,
		StageID:        c.StageID,
		JobID:          c.JobID,
		CVLink:         c.CVLink,
		CreatedAt:      c.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:      c.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
	if c.BirthDate != nil {
		view.Birthdate = time.Time(*c.BirthDate).Format("2006-01-02")
	}
	return view
}

// HandleListCandidates 按岗位、阶段、状态筛选候选人列表
func (h *CandidateHandler) HandleListCandidates(ctx context.Context, query CandidateListQuery) (*CandidateListResponse, error) {
	if query.Limit <= 0 || query.Limit > 200 {
		query.Limit = 50
	}
	candidates, total, err := h.db.ListCandidates(ctx, storage.CandidateFilter{
		JobID:   query.JobID,
		StageID: query.StageID,
		Status:  query.Status,
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
	if err != nil {
		return nil, processor.NewTransactionError("list_candidates", err.Error())
	}

	resp := &CandidateListResponse{
		Candidates: make([]CandidateView, 0, len(candidates)),
		Total:      total,
	}
	for i := range candidates {
		resp.Candidates = append(resp.Candidates, candidateView(&candidates[i]))
	}
	return resp, nil
}

// HandleGetCandidate 按ID获取候选人
func (h *CandidateHandler) HandleGetCandidate(ctx context.Context, candidateID string) (*CandidateView, error) {
	if candidateID == "" {
		return nil, processor.NewValidationError("get_candidate", "candidate_id 不能为空")
	}
	candidate, err := h.db.GetCandidateByID(ctx, candidateID)
	if err != nil {
		return nil, processor.NewTransactionError("get_candidate", err.Error())
	}
	if candidate == nil {
		return nil, processor.NewNotFoundError("get_candidate", fmt.Sprintf("候选人 %s 不存在", candidateID))
	}
	view := candidateView(candidate)
	return &view, nil
}

// CandidateUpdateRequest 候选人手工编辑请求，nil字段不参与更新
type CandidateUpdateRequest struct {
	FullName       *string  `json:"full_name,omitempty"`
	Email          *string  `json:"email,omitempty"`
	Gender         *string  `json:"gender,omitempty"`
	Position       *string  `json:"position,omitempty"`
	Experience     *string  `json:"experience,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	CVSummary      *string  `json:"cv_summary,omitempty"`
	FitScore       *float64 `json:"fit_score,omitempty"`
	Evaluation     *string  `json:"evaluation,omitempty"`
	PipelineStatus *string  `json:"pipeline_status,omitempty"`
	StageID        *string  `json:"stage_id,omitempty"`
	JobID          *string  `json:"job_id,omitempty"`
}

// HandleUpdateCandidate 手工编辑候选人字段
func (h *CandidateHandler) HandleUpdateCandidate(ctx context.Context, candidateID string, req CandidateUpdateRequest) (*CandidateView, error) {
	if candidateID == "" {
		return nil, processor.NewValidationError("update_candidate", "candidate_id 不能为空")
	}
	existing, err := h.db.GetCandidateByID(ctx, candidateID)
	if err != nil {
		return nil, processor.NewTransactionError("update_candidate", err.Error())
	}
	if existing == nil {
		return nil, processor.NewNotFoundError("update_candidate", fmt.Sprintf("候选人 %s 不存在", candidateID))
	}

	updates := make(map[string]interface{})
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Gender != nil {
		updates["gender"] = *req.Gender
	}
	if req.Position != nil {
		updates["position"] = *req.Position
	}
	if req.Experience != nil {
		updates["experience"] = *req.Experience
	}
	if req.Skills != nil {
		if j, err := models.StringSliceToJSON(req.Skills); err == nil {
			updates["skills"] = j
		}
	}
	if req.CVSummary != nil {
		updates["cv_summary"] = *req.CVSummary
	}
	if req.FitScore != nil {
		updates["fit_score"] = *req.FitScore
	}
	if req.Evaluation != nil {
		updates["evaluation"] = *req.Evaluation
	}
	if req.PipelineStatus != nil {
		updates["pipeline_status"] = *req.PipelineStatus
	}
	if req.StageID != nil {
		updates["stage_id"] = *req.StageID
	}
	if req.JobID != nil {
		updates["job_id"] = *req.JobID
	}

	if len(updates) > 0 {
		if err := h.db.UpdateCandidate(ctx, candidateID, updates); err != nil {
			return nil, processor.NewTransactionError("update_candidate", err.Error())
		}
	}

	updated, err := h.db.GetCandidateByID(ctx, candidateID)
	if err != nil || updated == nil {
		return nil, processor.NewTransactionError("update_candidate", "读取更新后的候选人失败")
	}
	view := candidateView(updated)
	return &view, nil
}

// HandleDeleteCandidate 删除候选人及其关联的活动和上传记录
func (h *CandidateHandler) HandleDeleteCandidate(ctx context.Context, candidateID string) error {
	if candidateID == "" {
		return processor.NewValidationError("delete_candidate", "candidate_id 不能为空")
	}
	existing, err := h.db.GetCandidateByID(ctx, candidateID)
	if err != nil {
		return processor.NewTransactionError("delete_candidate", err.Error())
	}
	if existing == nil {
		return processor.NewNotFoundError("delete_candidate", fmt.Sprintf("候选人 %s 不存在", candidateID))
	}
	if err := h.db.DeleteCandidateCascade(ctx, candidateID); err != nil {
		return processor.NewTransactionError("delete_candidate", err.Error())
	}
	return nil
}
