package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptState enumerates the lifecycle states of an exam attempt.
type AttemptState string

const (
	AttemptStateNotStarted AttemptState = "NOT_STARTED"
	AttemptStateInProgress AttemptState = "IN_PROGRESS"
	AttemptStatePaused     AttemptState = "PAUSED"
	AttemptStateSubmitted  AttemptState = "SUBMITTED"
	AttemptStateExpired    AttemptState = "EXPIRED"
	AttemptStateAbandoned  AttemptState = "ABANDONED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s AttemptState) Terminal() bool {
	return s == AttemptStateSubmitted || s == AttemptStateExpired || s == AttemptStateAbandoned
}

// SubmitReason identifies what triggered a submission.
type SubmitReason string

const (
	SubmitReasonUserRequested      SubmitReason = "user_requested"
	SubmitReasonTimeExpired        SubmitReason = "time_expired"
	SubmitReasonViolationThreshold SubmitReason = "violation_threshold"
)

// ViolationKind enumerates the watched integrity signals.
type ViolationKind string

const (
	ViolationFocusLoss     ViolationKind = "FOCUS_LOSS"
	ViolationTabSwitch     ViolationKind = "TAB_SWITCH"
	ViolationRightClick    ViolationKind = "RIGHT_CLICK"
	ViolationCopyPaste     ViolationKind = "COPY_PASTE"
	ViolationCameraAbsence ViolationKind = "CAMERA_ABSENCE"
)

// Violation is a single detected integrity event.
type Violation struct {
	Kind       ViolationKind `json:"kind"`
	Detail     string        `json:"detail,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// AnswerValue holds a candidate's answer to one question. Single-choice
// questions use Selected with one element; multi-choice may carry several.
// Essay answers use Text.
type AnswerValue struct {
	Selected []string `json:"selected,omitempty"`
	Text     string   `json:"text,omitempty"`
}

// Attempt represents one candidate's timed run through an exam.
type Attempt struct {
	ID            uuid.UUID     `json:"id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	CandidateID   int           `json:"candidate_id"`
	AttemptNumber int           `json:"attempt_number"`
	State         AttemptState  `json:"state"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	SubmitReason  *SubmitReason `json:"submit_reason,omitempty"`

	Answers    map[string]AnswerValue `json:"answers"`
	Violations []Violation            `json:"violations"`

	Percentage *int  `json:"percentage,omitempty"`
	Passed     *bool `json:"passed,omitempty"`
}

// ScoreResult is the output of grading a finished attempt.
type ScoreResult struct {
	CorrectCount   int      `json:"correct_count"`
	TotalQuestions int      `json:"total_questions"`
	Percentage     int      `json:"percentage"`
	Passed         bool     `json:"passed"`
	Diagnostics    []string `json:"diagnostics,omitempty"`
}

// AttemptRecord is the hand-off contract to persistence and certificate
// rendering once an attempt reaches a terminal state.
type AttemptRecord struct {
	AttemptID     uuid.UUID              `json:"attempt_id"`
	ExamID        uuid.UUID              `json:"exam_id"`
	CandidateID   int                    `json:"candidate_id"`
	AttemptNumber int                    `json:"attempt_number"`
	State         AttemptState           `json:"state"`
	SubmitReason  *SubmitReason          `json:"submit_reason,omitempty"`
	Answers       map[string]AnswerValue `json:"answers"`
	Violations    []Violation            `json:"violations"`
	Percentage    *int                   `json:"percentage,omitempty"`
	Passed        *bool                  `json:"passed,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at"`
}

// AttemptStateView is the reload-recovery payload: what a candidate needs
// to resume an in-flight attempt after a page refresh.
type AttemptStateView struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	CandidateID      int               `json:"candidate_id"`
	State            AttemptState      `json:"state"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds int               `json:"remaining_seconds"`
	ViolationCount   int               `json:"violation_count"`
}

// RecordAnswerRequest is the REST payload for saving one answer.
type RecordAnswerRequest struct {
	QuestionID string   `json:"question_id" binding:"required,uuid"`
	Selected   []string `json:"selected" binding:"omitempty,max=26"`
	Text       string   `json:"text" binding:"omitempty,max=10000"`
}

// ReportViolationRequest is the REST payload for reporting one integrity event.
type ReportViolationRequest struct {
	Kind   string `json:"kind" binding:"required,oneof=FOCUS_LOSS TAB_SWITCH RIGHT_CLICK COPY_PASTE CAMERA_ABSENCE"`
	Detail string `json:"detail" binding:"omitempty,max=500"`
}

// StartAttemptRequest is the payload for starting an attempt.
type StartAttemptRequest struct {
	EntryToken string `json:"entry_token" binding:"omitempty,min=4,max=20"`
}
