package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Candidate 候选人主表
type Candidate struct {
	CandidateID    string          `gorm:"type:char(36);primaryKey"`
	FullName       string          `gorm:"type:varchar(255)"`
	Email          string          `gorm:"type:varchar(255);index:idx_candidates_email"`
	Gender         string          `gorm:"type:varchar(10)"`
	BirthDate      *datatypes.Date `gorm:"type:date"`
	Position       string          `gorm:"type:varchar(255)"`
	Experience     string          `gorm:"type:text"`
	Skills         datatypes.JSON  `gorm:"type:json"`
	CVSummary      string          `gorm:"type:text"`
	FitScore       *float64        `gorm:"type:float"`
	Strengths      datatypes.JSON  `gorm:"type:json"`
	Weaknesses     datatypes.JSON  `gorm:"type:json"`
	Evaluation     string          `gorm:"type:text"`
	PipelineStatus string          `gorm:"type:varchar(50);default:'pending';index:idx_candidates_pipeline_status"`
	StageID        *string         `gorm:"type:char(36);index:idx_candidates_stage_id"`
	JobID          *string         `gorm:"type:char(36);index:idx_candidates_job_id"`
	CVLink         string          `gorm:"type:varchar(1024)"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`

	Stage *Stage `gorm:"foreignKey:StageID;references:StageID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Job   *Job   `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// CVUpload 简历文件上传记录表，file_hash按岗位维度在写入时校验唯一
type CVUpload struct {
	UploadID    string    `gorm:"type:char(36);primaryKey"`
	CandidateID string    `gorm:"type:char(36);not null;index:idx_cv_uploads_candidate_id"`
	JobID       *string   `gorm:"type:char(36);index:idx_cv_uploads_job_id"`
	FileName    string    `gorm:"type:varchar(255)"`
	FileHash    string    `gorm:"type:char(64);not null;index:idx_cv_uploads_file_hash"`
	FileURL     string    `gorm:"type:varchar(1024)"`
	Status      string    `gorm:"type:varchar(50);default:'stored'"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (CVUpload) TableName() string {
	return "cv_uploads"
}

// Job 岗位信息表
type Job struct {
	JobID        string    `gorm:"type:char(36);primaryKey"`
	Title        string    `gorm:"type:varchar(255);not null"`
	Department   string    `gorm:"type:varchar(255)"`
	Description  string    `gorm:"type:text"`
	Requirements string    `gorm:"type:text"`
	Status       string    `gorm:"type:varchar(50);default:'active';index:idx_jobs_status"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// HiringPipeline 招聘流水线表，每条流水线至多关联一个岗位
type HiringPipeline struct {
	PipelineID string    `gorm:"type:char(36);primaryKey"`
	Name       string    `gorm:"type:varchar(255);not null"`
	JobID      *string   `gorm:"type:char(36);index:idx_pipelines_job_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`

	Job *Job `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (HiringPipeline) TableName() string {
	return "hiring_pipelines"
}

// Stage 招聘阶段表。is_default为真的阶段不属于任何流水线，
// 新建候选人在未指定阶段时落入该默认阶段。
type Stage struct {
	StageID          string         `gorm:"type:char(36);primaryKey"`
	Name             string         `gorm:"type:varchar(255);not null"`
	HiringPipelineID *string        `gorm:"type:char(36);index:idx_stages_pipeline_id"`
	IsDefault        bool           `gorm:"default:false;index:idx_stages_is_default"`
	Settings         datatypes.JSON `gorm:"type:json"` // 含排序权重等，settings.order
	CreatedAt        time.Time      `gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime"`

	HiringPipeline *HiringPipeline `gorm:"foreignKey:HiringPipelineID;references:PipelineID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (Stage) TableName() string {
	return "stages"
}

// CandidateActivity 候选人活动记录表（面试轮次、笔试等）
type CandidateActivity struct {
	ActivityID  string     `gorm:"type:char(36);primaryKey"`
	CandidateID string     `gorm:"type:char(36);not null;index:idx_activities_candidate_id"`
	StageID     *string    `gorm:"type:char(36);index:idx_activities_stage_id"`
	Title       string     `gorm:"type:varchar(255);not null"`
	Kind        string     `gorm:"type:varchar(50)"`
	StartDate   *time.Time
	EndDate     *time.Time
	Status      string     `gorm:"type:varchar(50);default:'scheduled'"`
	Result      string     `gorm:"type:varchar(20);default:'pending'"` // pass|fail|pending
	Notes       string     `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Stage     *Stage     `gorm:"foreignKey:StageID;references:StageID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (CandidateActivity) TableName() string {
	return "candidate_activities"
}

// Interview 面试安排表。同一日期时间只允许存在一场面试，写入时全局校验。
type Interview struct {
	InterviewID   string    `gorm:"type:char(36);primaryKey"`
	ActivityID    *string   `gorm:"type:char(36);uniqueIndex:idx_interviews_activity_unique"`
	InterviewDate time.Time `gorm:"not null;index:idx_interviews_interview_date"`
	MeetingLink   string    `gorm:"type:varchar(1024)"`
	Location      string    `gorm:"type:varchar(255)"`
	Confirmed     bool      `gorm:"default:false"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`

	Activity *CandidateActivity `gorm:"foreignKey:ActivityID;references:ActivityID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (Interview) TableName() string {
	return "interviews"
}

// StringSliceToJSON Helper function to convert []string to datatypes.JSON
func StringSliceToJSON(items []string) (datatypes.JSON, error) {
	if items == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// JSONToStringSlice Helper function to convert datatypes.JSON back to []string
func JSONToStringSlice(data datatypes.JSON) []string {
	if len(data) == 0 {
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	return items
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
