// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/finance"
)

// RespondError maps engine errors to HTTP responses using RFC7807.
// The finance error code rides along in the problem type so clients can
// branch without string-matching the detail text.
func RespondError(w http.ResponseWriter, err error) {
	var fe *finance.Error
	if !errors.As(err, &fe) {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	status := http.StatusInternalServerError
	title := "Internal Error"
	switch fe.Kind {
	case finance.KindValidation:
		status, title = http.StatusBadRequest, "Validation Failed"
	case finance.KindNotFound:
		status, title = http.StatusNotFound, "Not Found"
	case finance.KindStateConflict, finance.KindBusinessRule:
		status, title = http.StatusConflict, "Conflict"
	case finance.KindConcurrency:
		status, title = http.StatusConflict, "Concurrent Modification"
	}

	JSON(w, status, ProblemDetail{
		Type:   "urn:meridian:finance:" + fe.Code,
		Title:  title,
		Status: status,
		Detail: fe.Message,
	})
}
