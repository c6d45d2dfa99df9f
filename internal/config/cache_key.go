package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey returns the cache key for a candidate's login session
func (r *CacheKeyStruct) CandidateSessionKey(candidateID int) string {
	return fmt.Sprintf("login:%d", candidateID)
}

// AttemptStartKey returns the cache key for a candidate's attempt start time
func (r *CacheKeyStruct) AttemptStartKey(examID string, candidateID int) string {
	return fmt.Sprintf("candidate:%d:exam:%s:attempt_start", candidateID, examID)
}

// CandidateAnswersKey returns the cache key for a candidate's autosaved answers
func (r *CacheKeyStruct) CandidateAnswersKey(examID string, candidateID int) string {
	return fmt.Sprintf("candidate:%d:exam:%s:answers", candidateID, examID)
}

// ExamPayloadKey returns the cache key for an exam's candidate-safe payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamDefinitionKey returns the cache key for a full exam definition,
// answer key included. Engine-side only; never served to candidates.
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// CandidateActiveAttemptKey returns the cache key for a candidate's active attempt
func (r *CacheKeyStruct) CandidateActiveAttemptKey(candidateID int) string {
	return fmt.Sprintf("candidate:%d:active_attempt", candidateID)
}

var CacheKey = NewCacheKeyStruct()
