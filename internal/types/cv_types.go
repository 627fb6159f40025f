package types

import "time"

// ParsedResult LLM解析单份简历后的结构化结果。
// 除PipelineStatus外，所有字段在简历未提供时均可为空。
type ParsedResult struct {
	FullName       string   `json:"full_name"`
	Email          string   `json:"email"`
	Birthdate      string   `json:"birthdate,omitempty"` // YYYY-MM-DD
	Gender         string   `json:"gender,omitempty"`
	Position       string   `json:"position,omitempty"`
	Experience     string   `json:"experience,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	CVSummary      string   `json:"cv_summary,omitempty"`
	FitScore       *float64 `json:"fit_score,omitempty"`
	Strengths      []string `json:"strengths,omitempty"`
	Weaknesses     []string `json:"weaknesses,omitempty"`
	Evaluation     string   `json:"evaluation,omitempty"`
	PipelineStatus string   `json:"pipeline_status,omitempty"`
	StageID        *string  `json:"stage_id,omitempty"`
}

// MatchType 重复判定的匹配方式
type MatchType string

const (
	// MatchTypeHash 文件指纹完全一致
	MatchTypeHash MatchType = "hash"
	// MatchTypeEmail 解析出的邮箱与已有候选人一致
	MatchTypeEmail MatchType = "email"
)

// CandidateSnapshot 已有候选人在决策时刻的快照，供建议引擎和前端展示使用
type CandidateSnapshot struct {
	CandidateID    string   `json:"candidate_id"`
	FullName       string   `json:"full_name"`
	Email          string   `json:"email"`
	Position       string   `json:"position,omitempty"`
	PipelineStatus string   `json:"pipeline_status"`
	FitScore       *float64 `json:"fit_score,omitempty"`
	JobID          *string  `json:"job_id,omitempty"`
	StageID        *string  `json:"stage_id,omitempty"`
	CVLink         string   `json:"cv_link,omitempty"`
}

// DuplicateCandidate 分类器对单个上传文件给出的重复判定
type DuplicateCandidate struct {
	ExistingCandidateID string             `json:"existing_candidate_id"`
	MatchType           MatchType          `json:"match_type"`
	Existing            *CandidateSnapshot `json:"existing"`
}

// SuggestedAction 建议引擎给出的处置动作
type SuggestedAction string

const (
	ActionSkip      SuggestedAction = "skip"
	ActionMerge     SuggestedAction = "merge"
	ActionReplace   SuggestedAction = "replace"
	ActionCreateNew SuggestedAction = "create_new"
)

// Suggestion 处置建议及其依据说明
type Suggestion struct {
	SuggestedAction SuggestedAction `json:"suggested_action"`
	Reason          string          `json:"reason"`
}

// UploadedDuplicate 上传响应中单个重复文件的完整描述
type UploadedDuplicate struct {
	FileName        string             `json:"file_name"`
	FileHash        string             `json:"file_hash"`
	MatchType       MatchType          `json:"match_type"`
	Existing        *CandidateSnapshot `json:"existing"`
	NewData         *ParsedResult      `json:"new_data,omitempty"`
	SuggestedAction SuggestedAction    `json:"suggested_action"`
	Reason          string             `json:"reason"`
}

// NewCandidateResult 上传响应中成功入库的新候选人
type NewCandidateResult struct {
	CandidateID string   `json:"candidate_id"`
	FileName    string   `json:"file_name"`
	FullName    string   `json:"full_name"`
	Email       string   `json:"email"`
	FitScore    *float64 `json:"fit_score,omitempty"`
	CVLink      string   `json:"cv_link,omitempty"`
}

// UploadSummary 上传批次统计
type UploadSummary struct {
	TotalFiles     int `json:"total_files"`
	NewCount       int `json:"new_count"`
	DuplicateCount int `json:"duplicate_count"`
	FailedCount    int `json:"failed_count"`
}

// CVUploadResponse POST /cv/upload 的响应体
type CVUploadResponse struct {
	NewCandidates []NewCandidateResult `json:"new_candidates"`
	Duplicates    []UploadedDuplicate  `json:"duplicates"`
	Summary       UploadSummary        `json:"summary"`
}

// ReconcileItem 处置批次中的单个条目
type ReconcileItem struct {
	CandidateID string        `json:"candidate_id"`
	FileName    string        `json:"file_name,omitempty"`
	FileHash    string        `json:"file_hash,omitempty"`
	NewData     *ParsedResult `json:"new_data,omitempty"`
	FileContent []byte        `json:"file_content,omitempty"`
}

// ProcessRequest POST /cv/process 的请求体
type ProcessRequest struct {
	Duplicates []ReconcileItem `json:"duplicates"`
	Mode       SuggestedAction `json:"mode"`
	JobID      *string         `json:"job_id,omitempty"`
}

// ReconcileResult 单个条目处置成功后的结果
type ReconcileResult struct {
	CandidateID string          `json:"candidate_id"`
	FileName    string          `json:"file_name,omitempty"`
	Action      SuggestedAction `json:"action"`
	Detail      string          `json:"detail,omitempty"`
}

// ReconcileError 单个条目处置失败的描述，批次整体仍然返回200
type ReconcileError struct {
	FileName    string `json:"file_name,omitempty"`
	CandidateID string `json:"candidate_id,omitempty"`
	Error       string `json:"error"`
	Code        string `json:"code"`
}

// ProcessSummary 处置批次统计
type ProcessSummary struct {
	TotalProcessed int             `json:"total_processed"`
	TotalErrors    int             `json:"total_errors"`
	Mode           SuggestedAction `json:"mode"`
}

// ProcessResponse POST /cv/process 的响应体
type ProcessResponse struct {
	Processed []ReconcileResult `json:"processed"`
	Errors    []ReconcileError  `json:"errors"`
	Summary   ProcessSummary    `json:"summary"`
}

// StageEventKind 阶段事件类型
type StageEventKind string

const (
	StageEventCreated StageEventKind = "stage.created"
	StageEventUpdated StageEventKind = "stage.updated"
	StageEventDeleted StageEventKind = "stage.deleted"
)

// JobMatchContext 解析时传给LLM的岗位上下文
type JobMatchContext struct {
	JobID        string
	Title        string
	Description  string
	Requirements string
}

// ParseTimestamp 统一的事件时间戳格式
func ParseTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
