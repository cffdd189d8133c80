// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		JSON(w, http.StatusUnprocessableEntity, ValidationProblem{
			ProblemDetail: ProblemDetail{
				Type:   string(shared.KindInvalidInput),
				Title:  "Validation Failed",
				Status: http.StatusUnprocessableEntity,
			},
			Errors: verr.Fields,
		})
		return
	}
	kind := shared.KindOf(err)
	status, title := statusFor(kind)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	JSON(w, status, ProblemDetail{
		Type:   string(kind),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func statusFor(kind shared.Kind) (int, string) {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound, "Not Found"
	case shared.KindDuplicateName:
		return http.StatusConflict, "Duplicate Name"
	case shared.KindInvalidInput:
		return http.StatusBadRequest, "Invalid Input"
	case shared.KindInvalidConfig:
		return http.StatusUnprocessableEntity, "Invalid Pricing Config"
	case shared.KindMissingCondition:
		return http.StatusUnprocessableEntity, "Missing Condition"
	case shared.KindInvalidTransition:
		return http.StatusConflict, "Invalid Transition"
	case shared.KindImmutable:
		return http.StatusLocked, "Immutable"
	case shared.KindBusy:
		return http.StatusConflict, "Busy"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
