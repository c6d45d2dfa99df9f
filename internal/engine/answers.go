package engine

import "github.com/certeva/certexam-backend/internal/model"

// AnswerSheet holds the candidate's answers for one attempt. Writes are
// upsert-only: a changed answer overwrites the previous value, entries are
// never removed. Once frozen no further writes are accepted.
//
// The sheet is not safe for concurrent use on its own; the owning Session
// serializes access.
type AnswerSheet struct {
	answers map[string]model.AnswerValue
	frozen  bool
}

// NewAnswerSheet returns an empty, unfrozen sheet.
func NewAnswerSheet() *AnswerSheet {
	return &AnswerSheet{answers: make(map[string]model.AnswerValue)}
}

// Set upserts the answer for questionID. Returns false if the sheet is
// frozen.
func (s *AnswerSheet) Set(questionID string, value model.AnswerValue) bool {
	if s.frozen {
		return false
	}
	s.answers[questionID] = value
	return true
}

// Freeze stops all further writes. Idempotent.
func (s *AnswerSheet) Freeze() { s.frozen = true }

// Frozen reports whether the sheet accepts writes.
func (s *AnswerSheet) Frozen() bool { return s.frozen }

// Len returns the number of answered questions.
func (s *AnswerSheet) Len() int { return len(s.answers) }

// Snapshot returns a copy of the answers map so callers cannot mutate the
// sheet after it is frozen.
func (s *AnswerSheet) Snapshot() map[string]model.AnswerValue {
	out := make(map[string]model.AnswerValue, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}
