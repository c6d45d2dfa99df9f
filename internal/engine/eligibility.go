package engine

import (
	"fmt"

	"github.com/certeva/certexam-backend/internal/model"
)

// Evaluate decides certificate eligibility for a finalized score against a
// template. It is deliberately independent of ScoreResult.Passed: a
// certificate template may require a different minimum than the exam's
// own passing score, and the two thresholds never collapse into one.
//
// When the template grades in points, score is interpreted as points out
// of MaxScore and converted to a percentage first.
func Evaluate(score int, tpl model.CertificateTemplate) model.EligibilityResult {
	effective := float64(score)
	if tpl.PassingGradeType == model.GradeTypePoints {
		if tpl.MaxScore <= 0 {
			return model.EligibilityResult{
				Eligible:   false,
				GradeLabel: "Below Minimum",
				Message:    "Certificate template has an invalid maximum score.",
			}
		}
		effective = 100 * float64(score) / float64(tpl.MaxScore)
	}

	if effective >= float64(tpl.MinimumScore) {
		return model.EligibilityResult{
			Eligible:   true,
			GradeLabel: tpl.GradeText,
			Message:    fmt.Sprintf("Congratulations! You qualified for a certificate with grade %s.", tpl.GradeText),
		}
	}

	return model.EligibilityResult{
		Eligible:   false,
		GradeLabel: "Below Minimum",
		Message:    fmt.Sprintf("Score is below the minimum of %d required for certification.", tpl.MinimumScore),
	}
}
