package storage

import (
	"time"

	"hiring-go/internal/types"

	"github.com/google/uuid"
)

// StageEvent 阶段CRUD事件
type StageEvent struct {
	EventID   string               `json:"event_id"`
	Kind      types.StageEventKind `json:"kind"`
	StageID   string               `json:"stage_id"`
	Name      string               `json:"name,omitempty"`
	IsDefault bool                 `json:"is_default,omitempty"`
	Timestamp string               `json:"timestamp"`
}

// NewStageEvent 构造阶段事件
func NewStageEvent(kind types.StageEventKind, stageID, name string, isDefault bool) StageEvent {
	return StageEvent{
		EventID:   uuid.NewString(),
		Kind:      kind,
		StageID:   stageID,
		Name:      name,
		IsDefault: isDefault,
		Timestamp: types.ParseTimestamp(time.Now()),
	}
}

// CandidateEvent 候选人生命周期事件
type CandidateEvent struct {
	EventID     string  `json:"event_id"`
	Kind        string  `json:"kind"` // candidate.created, candidate.updated, candidate.deleted
	CandidateID string  `json:"candidate_id"`
	JobID       *string `json:"job_id,omitempty"`
	Source      string  `json:"source,omitempty"` // cv_upload, manual, reconcile
	Timestamp   string  `json:"timestamp"`
}

// NewCandidateEvent 构造候选人事件
func NewCandidateEvent(kind, candidateID string, jobID *string, source string) CandidateEvent {
	return CandidateEvent{
		EventID:     uuid.NewString(),
		Kind:        kind,
		CandidateID: candidateID,
		JobID:       jobID,
		Source:      source,
		Timestamp:   types.ParseTimestamp(time.Now()),
	}
}

// ReconcileEvent 重复简历处置结果事件
type ReconcileEvent struct {
	EventID     string                `json:"event_id"`
	CandidateID string                `json:"candidate_id"`
	Action      types.SuggestedAction `json:"action"`
	FileHash    string                `json:"file_hash,omitempty"`
	Timestamp   string                `json:"timestamp"`
}

// NewReconcileEvent 构造处置事件
func NewReconcileEvent(candidateID string, action types.SuggestedAction, fileHash string) ReconcileEvent {
	return ReconcileEvent{
		EventID:     uuid.NewString(),
		CandidateID: candidateID,
		Action:      action,
		FileHash:    fileHash,
		Timestamp:   types.ParseTimestamp(time.Now()),
	}
}
