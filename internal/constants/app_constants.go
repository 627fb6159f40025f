package constants

// 上传约束
const (
	// MaxUploadSizeBytes 单个简历文件的大小上限
	MaxUploadSizeBytes = 10 << 20 // 10MB

	// AllowedCVExtension 允许的简历文件扩展名
	AllowedCVExtension = ".pdf"

	// AllowedCVContentType 允许的简历MIME类型
	AllowedCVContentType = "application/pdf"
)

// 流水线状态常量，与建议引擎的优先级表保持一致
const (
	StatusPending   = "pending"
	StatusApplied   = "applied"
	StatusScreening = "screening"
	StatusReviewed  = "reviewed"
	StatusShortlist = "shortlisted"
	StatusOnHold    = "on_hold"

	StatusInterviewing       = "interviewing"
	StatusInterviewScheduled = "interview_scheduled"
	StatusInProgress         = "in_progress"
	StatusTechnicalInterview = "technical_interview"
	StatusHRInterview        = "hr_interview"

	StatusOffered      = "offered"
	StatusOfferPending = "offer_pending"
	StatusFinalRound   = "final_interview"

	StatusHired         = "hired"
	StatusAccepted      = "accepted"
	StatusOfferAccepted = "offer_accepted"

	StatusRejected      = "rejected"
	StatusDeclined      = "declined"
	StatusWithdrawn     = "withdrawn"
	StatusGhosted       = "ghosted"
	StatusNotInterested = "not_interested"
)

// 活动结果
const (
	ActivityResultPass    = "pass"
	ActivityResultFail    = "fail"
	ActivityResultPending = "pending"
)
