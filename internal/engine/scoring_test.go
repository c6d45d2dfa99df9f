package engine

import (
	"testing"

	"github.com/certeva/certexam-backend/internal/model"
)

func single(opt string) model.AnswerValue {
	return model.AnswerValue{Selected: []string{opt}}
}

func multi(opts ...string) model.AnswerValue {
	return model.AnswerValue{Selected: opts}
}

func TestScore_SingleChoice(t *testing.T) {
	key := map[string][]string{
		"q1": {"A"}, "q2": {"B"}, "q3": {"C"}, "q4": {"D"}, "q5": {"A"},
	}

	tests := []struct {
		name         string
		answers      map[string]model.AnswerValue
		passingScore int
		wantCorrect  int
		wantPct      int
		wantPassed   bool
	}{
		{
			name: "three of five correct",
			answers: map[string]model.AnswerValue{
				"q1": single("A"), "q2": single("B"), "q3": single("C"),
				"q4": single("A"), "q5": single("B"),
			},
			passingScore: 60, wantCorrect: 3, wantPct: 60, wantPassed: true,
		},
		{
			name: "unanswered count as incorrect",
			answers: map[string]model.AnswerValue{
				"q1": single("A"), "q2": single("B"),
			},
			passingScore: 60, wantCorrect: 2, wantPct: 40, wantPassed: false,
		},
		{
			name:         "all unanswered",
			answers:      map[string]model.AnswerValue{},
			passingScore: 60, wantCorrect: 0, wantPct: 0, wantPassed: false,
		},
		{
			name: "all correct",
			answers: map[string]model.AnswerValue{
				"q1": single("A"), "q2": single("B"), "q3": single("C"),
				"q4": single("D"), "q5": single("A"),
			},
			passingScore: 100, wantCorrect: 5, wantPct: 100, wantPassed: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(ScoreInput{
				Answers:        tc.answers,
				AnswerKey:      key,
				TotalQuestions: 5,
				PassingScore:   tc.passingScore,
			})
			if got.CorrectCount != tc.wantCorrect {
				t.Errorf("correct = %d, want %d", got.CorrectCount, tc.wantCorrect)
			}
			if got.Percentage != tc.wantPct {
				t.Errorf("percentage = %d, want %d", got.Percentage, tc.wantPct)
			}
			if got.Passed != tc.wantPassed {
				t.Errorf("passed = %v, want %v", got.Passed, tc.wantPassed)
			}
		})
	}
}

func TestScore_RoundsHalfUp(t *testing.T) {
	// 1 of 3 correct = 33.33 → 33; 2 of 3 = 66.67 → 67; 1 of 8 = 12.5 → 13.
	tests := []struct {
		total   int
		correct int
		want    int
	}{
		{3, 1, 33},
		{3, 2, 67},
		{8, 1, 13},
		{8, 7, 88},
	}

	for _, tc := range tests {
		key := make(map[string][]string, tc.total)
		answers := make(map[string]model.AnswerValue, tc.correct)
		for i := 0; i < tc.total; i++ {
			qid := string(rune('a' + i))
			key[qid] = []string{"A"}
			if i < tc.correct {
				answers[qid] = single("A")
			}
		}
		got := Score(ScoreInput{Answers: answers, AnswerKey: key, TotalQuestions: tc.total, PassingScore: 50})
		if got.Percentage != tc.want {
			t.Errorf("%d/%d: percentage = %d, want %d", tc.correct, tc.total, got.Percentage, tc.want)
		}
	}
}

func TestScore_MultiChoiceExactEquality(t *testing.T) {
	key := map[string][]string{"q1": {"A", "C"}}

	tests := []struct {
		name        string
		answer      model.AnswerValue
		wantCorrect int
	}{
		{"exact match", multi("A", "C"), 1},
		{"order independent", multi("C", "A"), 1},
		{"missing one", multi("A"), 0},
		{"extra wrong pick", multi("A", "C", "B"), 0},
		{"all wrong", multi("B", "D"), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(ScoreInput{
				Answers:        map[string]model.AnswerValue{"q1": tc.answer},
				AnswerKey:      key,
				TotalQuestions: 1,
				PassingScore:   100,
			})
			if got.CorrectCount != tc.wantCorrect {
				t.Errorf("correct = %d, want %d", got.CorrectCount, tc.wantCorrect)
			}
		})
	}
}

func TestScore_PartialCredit(t *testing.T) {
	key := map[string][]string{"q1": {"A", "B", "C", "D"}}

	// Half the correct options selected, none wrong: 50% of one question.
	got := Score(ScoreInput{
		Answers:        map[string]model.AnswerValue{"q1": multi("A", "B")},
		AnswerKey:      key,
		TotalQuestions: 1,
		PassingScore:   50,
		PartialCredit:  true,
	})
	if got.Percentage != 50 {
		t.Errorf("percentage = %d, want 50", got.Percentage)
	}
	if got.CorrectCount != 0 {
		t.Errorf("partial answer must not count as fully correct, got %d", got.CorrectCount)
	}

	// A wrong pick voids the question even with partial credit on.
	got = Score(ScoreInput{
		Answers:        map[string]model.AnswerValue{"q1": multi("A", "B", "E")},
		AnswerKey:      key,
		TotalQuestions: 1,
		PassingScore:   50,
		PartialCredit:  true,
	})
	if got.Percentage != 0 {
		t.Errorf("wrong pick: percentage = %d, want 0", got.Percentage)
	}
}

func TestScore_MissingAnswerKey(t *testing.T) {
	key := map[string][]string{
		"q1": {"A"},
		"q2": {}, // malformed: no key
	}
	got := Score(ScoreInput{
		Answers:        map[string]model.AnswerValue{"q1": single("A"), "q2": single("A")},
		AnswerKey:      key,
		TotalQuestions: 2,
		PassingScore:   50,
	})
	if got.CorrectCount != 1 {
		t.Errorf("correct = %d, want 1", got.CorrectCount)
	}
	if got.Percentage != 50 {
		t.Errorf("percentage = %d, want 50", got.Percentage)
	}
	if len(got.Diagnostics) != 1 {
		t.Errorf("diagnostics = %v, want one entry for the keyless question", got.Diagnostics)
	}
}

func TestScore_ZeroQuestions(t *testing.T) {
	got := Score(ScoreInput{TotalQuestions: 0, PassingScore: 50})
	if got.Percentage != 0 || got.Passed {
		t.Errorf("empty exam must score 0 and not pass, got %+v", got)
	}
}
