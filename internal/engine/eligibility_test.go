package engine

import (
	"strings"
	"testing"

	"github.com/certeva/certexam-backend/internal/model"
)

func TestEvaluate_DualThresholdsAreIndependent(t *testing.T) {
	// A candidate can pass the exam (70) yet miss the certificate minimum (80).
	score := Score(ScoreInput{
		Answers: map[string]model.AnswerValue{
			"q1": single("A"), "q2": single("A"), "q3": single("A"),
			"q4": single("A"), "q5": single("A"), "q6": single("A"),
			"q7": single("A"), "q8": single("B"), "q9": single("B"),
		},
		AnswerKey: map[string][]string{
			"q1": {"A"}, "q2": {"A"}, "q3": {"A"}, "q4": {"A"}, "q5": {"A"},
			"q6": {"A"}, "q7": {"A"}, "q8": {"A"}, "q9": {"A"},
		},
		TotalQuestions: 9,
		PassingScore:   70,
	})
	if score.Percentage != 78 || !score.Passed {
		t.Fatalf("setup: percentage = %d passed = %v, want 78/true", score.Percentage, score.Passed)
	}

	got := Evaluate(score.Percentage, model.CertificateTemplate{
		MinimumScore:     80,
		PassingGradeType: model.GradeTypePercentage,
		GradeText:        "Excellent",
	})
	if got.Eligible {
		t.Error("eligible = true, want false: template minimum is independent of exam passing score")
	}
	if !strings.Contains(got.Message, "80") {
		t.Errorf("message %q must name the numeric threshold", got.Message)
	}
}

func TestEvaluate_Percentage(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		min      int
		eligible bool
	}{
		{"above minimum", 85, 80, true},
		{"exactly minimum", 80, 80, true},
		{"below minimum", 72, 80, false},
		{"zero minimum", 0, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.score, model.CertificateTemplate{
				MinimumScore:     tc.min,
				PassingGradeType: model.GradeTypePercentage,
				GradeText:        "Distinction",
			})
			if got.Eligible != tc.eligible {
				t.Errorf("eligible = %v, want %v", got.Eligible, tc.eligible)
			}
			if tc.eligible && got.GradeLabel != "Distinction" {
				t.Errorf("grade label = %q, want template grade text", got.GradeLabel)
			}
		})
	}
}

func TestEvaluate_PointsConvertToPercentage(t *testing.T) {
	tpl := model.CertificateTemplate{
		MinimumScore:     75,
		PassingGradeType: model.GradeTypePoints,
		MaxScore:         200,
		GradeText:        "Certified",
	}

	// 160/200 points = 80% ≥ 75.
	if got := Evaluate(160, tpl); !got.Eligible {
		t.Errorf("160/200 points: eligible = false, want true")
	}
	// 140/200 points = 70% < 75.
	if got := Evaluate(140, tpl); got.Eligible {
		t.Errorf("140/200 points: eligible = true, want false")
	}
}

func TestEvaluate_InvalidMaxScore(t *testing.T) {
	got := Evaluate(90, model.CertificateTemplate{
		MinimumScore:     50,
		PassingGradeType: model.GradeTypePoints,
		MaxScore:         0,
	})
	if got.Eligible {
		t.Error("zero max score must never be eligible")
	}
}
