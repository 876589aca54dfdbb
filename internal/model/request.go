package model

import (
	"time"

	"github.com/google/uuid"
)

// StatusKind enumerates the lifecycle of a VoiceRequest.
type StatusKind string

const (
	StatusTranscribing StatusKind = "transcribing"
	StatusProcessing   StatusKind = "processing"
	StatusReviewing    StatusKind = "reviewing"
	StatusCommitting   StatusKind = "committing"
	StatusCompleted    StatusKind = "completed"
	StatusFailed       StatusKind = "failed"
)

// RequestStatus is a tagged value: Reason is only set when Kind is StatusFailed.
type RequestStatus struct {
	Kind   StatusKind `json:"kind"`
	Reason string     `json:"reason,omitempty"`
}

// Failed builds a failed status carrying reason.
func Failed(reason string) RequestStatus {
	return RequestStatus{Kind: StatusFailed, Reason: reason}
}

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s.Kind == StatusCompleted || s.Kind == StatusFailed
}

func (s RequestStatus) String() string {
	if s.Kind == StatusFailed {
		return "failed: " + s.Reason
	}
	return string(s.Kind)
}

// VoiceRequest tracks one transcript through generation, review and commit.
type VoiceRequest struct {
	ID                 uuid.UUID     `json:"id"`
	Transcript         string        `json:"transcript"`
	CreatedAt          time.Time     `json:"created_at"`
	TargetRepositoryID *int64        `json:"target_repository_id,omitempty"`
	Status             RequestStatus `json:"status"`
}

// NewVoiceRequest creates a request in the transcribing state.
func NewVoiceRequest(transcript string, repoID *int64) *VoiceRequest {
	return &VoiceRequest{
		ID:                 uuid.New(),
		Transcript:         transcript,
		CreatedAt:          time.Now(),
		TargetRepositoryID: repoID,
		Status:             RequestStatus{Kind: StatusTranscribing},
	}
}

// Advance moves the request to next. Forward-only except that failed is reachable from any
// non-terminal status and reviewing may return to transcribing.
func (r *VoiceRequest) Advance(next RequestStatus) bool {
	if r.Status.Terminal() {
		return false
	}
	if next.Kind == StatusFailed {
		r.Status = next
		return true
	}
	if r.Status.Kind == StatusReviewing && next.Kind == StatusTranscribing {
		r.Status = next
		return true
	}
	if statusOrder[next.Kind] <= statusOrder[r.Status.Kind] {
		return false
	}
	r.Status = next
	return true
}

var statusOrder = map[StatusKind]int{
	StatusTranscribing: 0,
	StatusProcessing:   1,
	StatusReviewing:    2,
	StatusCommitting:   3,
	StatusCompleted:    4,
}
