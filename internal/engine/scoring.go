package engine

import (
	"fmt"
	"math"

	"github.com/certeva/certexam-backend/internal/model"
)

// ScoreInput carries everything the grader needs. No other state is read:
// scoring is a pure function of its input.
type ScoreInput struct {
	Answers        map[string]model.AnswerValue
	AnswerKey      map[string][]string
	TotalQuestions int
	PassingScore   int
	PartialCredit  bool
}

// Score grades an attempt. Unanswered questions count as incorrect, a
// question with a missing or empty answer key scores zero and records a
// diagnostic, and nothing in here can fail mid-calculation: a single bad
// question never aborts grading.
//
// Multi-choice questions require exact set equality unless PartialCredit
// is enabled, in which case the earned fraction is the share of correct
// options selected, with any wrong pick voiding the question.
func Score(in ScoreInput) model.ScoreResult {
	result := model.ScoreResult{TotalQuestions: in.TotalQuestions}

	var earned float64
	for questionID, correct := range in.AnswerKey {
		if len(correct) == 0 {
			result.Diagnostics = append(result.Diagnostics,
				fmt.Sprintf("question %s has no answer key, scored as incorrect", questionID))
			continue
		}

		answer, ok := in.Answers[questionID]
		if !ok || len(answer.Selected) == 0 {
			continue // unanswered
		}

		if len(correct) == 1 {
			if len(answer.Selected) == 1 && answer.Selected[0] == correct[0] {
				earned++
				result.CorrectCount++
			}
			continue
		}

		frac := multiChoiceFraction(answer.Selected, correct, in.PartialCredit)
		earned += frac
		if frac == 1 {
			result.CorrectCount++
		}
	}

	if in.TotalQuestions > 0 {
		result.Percentage = roundHalfUp(100 * earned / float64(in.TotalQuestions))
	}
	result.Passed = result.Percentage >= in.PassingScore

	return result
}

// multiChoiceFraction returns the earned share for a multi-choice answer:
// 1 for an exact set match, 0 for anything else unless partial credit is
// on, where it is the fraction of correct options selected. Selecting a
// wrong option always voids the question.
func multiChoiceFraction(selected, correct []string, partial bool) float64 {
	correctSet := make(map[string]struct{}, len(correct))
	for _, c := range correct {
		correctSet[c] = struct{}{}
	}

	hits := 0
	seen := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := correctSet[s]; ok {
			hits++
		} else {
			return 0 // wrong pick voids the question
		}
	}

	if hits == len(correctSet) && len(seen) == len(correctSet) {
		return 1
	}
	if partial {
		return float64(hits) / float64(len(correctSet))
	}
	return 0
}

// roundHalfUp rounds to the nearest integer with ties going up, matching
// the reference grading behavior.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
