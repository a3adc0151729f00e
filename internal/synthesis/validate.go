package synthesis

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"lorehub/internal/models"
)

var extractionValidator = validator.New(validator.WithRequiredStructEnabled())

// validateResult runs advisory schema validation over a parsed result.
// The result is always kept regardless of the outcome; callers only log
// the report, because partial structured data beats discarding it.
func validateResult(result *models.ExtractionResult) *models.ValidationReport {
	report := &models.ValidationReport{IsValid: true}

	err := extractionValidator.Struct(result)
	if err == nil {
		return report
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag()))
		}
	} else {
		report.Errors = append(report.Errors, err.Error())
	}
	report.IsValid = len(report.Errors) == 0
	return report
}
