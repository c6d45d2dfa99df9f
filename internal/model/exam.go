package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// AntiCheatConfig controls which integrity signals are watched during an
// attempt. Each signal is independently switchable.
type AntiCheatConfig struct {
	WatchFocusLoss  bool `json:"watch_focus_loss"`
	WatchTabSwitch  bool `json:"watch_tab_switch"`
	WatchRightClick bool `json:"watch_right_click"`
	WatchCopyPaste  bool `json:"watch_copy_paste"`
	WatchCamera     bool `json:"watch_camera"`
}

// Enabled reports whether the given violation kind is being watched.
func (c AntiCheatConfig) Enabled(kind ViolationKind) bool {
	switch kind {
	case ViolationFocusLoss:
		return c.WatchFocusLoss
	case ViolationTabSwitch:
		return c.WatchTabSwitch
	case ViolationRightClick:
		return c.WatchRightClick
	case ViolationCopyPaste:
		return c.WatchCopyPaste
	case ViolationCameraAbsence:
		return c.WatchCamera
	default:
		return false
	}
}

// Exam is a certification exam definition. The attempt engine treats it as
// read-only input.
type Exam struct {
	ID                 uuid.UUID       `json:"id"`
	Title              string          `json:"title"`
	DurationSeconds    int             `json:"duration_seconds"`
	PassingScore       int             `json:"passing_score"`
	EntryToken         string          `json:"entry_token,omitempty"`
	AllowPause         bool            `json:"allow_pause"`
	MaxPauseSeconds    int             `json:"max_pause_seconds"`
	ViolationThreshold int             `json:"violation_threshold"`
	AntiCheat          AntiCheatConfig `json:"anti_cheat"`
	MaxAttempts        int             `json:"max_attempts"`
	PartialCredit      bool            `json:"partial_credit"`
	ScheduledStart     *time.Time      `json:"scheduled_start,omitempty"`
	ScheduledEnd       *time.Time      `json:"scheduled_end,omitempty"`
	Status             ExamStatus      `json:"status"`
	Questions          []Question      `json:"questions,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// QuestionType enumerates supported question formats.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeEssay        QuestionType = "ESSAY"
)

// Question is a single exam question including its answer key.
type Question struct {
	ID             uuid.UUID       `json:"id"`
	QuestionText   string          `json:"question_text"`
	QuestionType   QuestionType    `json:"question_type"`
	Options        json.RawMessage `json:"options"`
	CorrectOptions []string        `json:"correct_options"`
	OrderNum       int             `json:"order_num"`
}

// ExamPayload is the redis-cached exam sent to candidates, with the answer
// key stripped.
type ExamPayload struct {
	ExamID          uuid.UUID              `json:"exam_id"`
	Title           string                 `json:"title"`
	DurationSeconds int                    `json:"duration_seconds"`
	AllowPause      bool                   `json:"allow_pause"`
	Questions       []QuestionForCandidate `json:"questions"`
}

// QuestionForCandidate is a question without its correct options.
type QuestionForCandidate struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options"`
	OrderNum     int             `json:"order_num"`
}

// StripAnswers converts a full exam to the candidate-safe payload.
func (e *Exam) StripAnswers() *ExamPayload {
	payload := &ExamPayload{
		ExamID:          e.ID,
		Title:           e.Title,
		DurationSeconds: e.DurationSeconds,
		AllowPause:      e.AllowPause,
		Questions:       make([]QuestionForCandidate, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		payload.Questions = append(payload.Questions, QuestionForCandidate{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Options:      q.Options,
			OrderNum:     q.OrderNum,
		})
	}
	return payload
}

// AnswerKey extracts question-id → correct options for the scoring engine.
func (e *Exam) AnswerKey() map[string][]string {
	key := make(map[string][]string, len(e.Questions))
	for _, q := range e.Questions {
		key[q.ID.String()] = q.CorrectOptions
	}
	return key
}
