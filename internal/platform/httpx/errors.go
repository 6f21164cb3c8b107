package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RespondError maps typed core errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var e *shared.Error
	if !errors.As(err, &e) {
		if logger != nil {
			logger.Error("unhandled error", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	status, title := statusFor(e.Kind)
	writeProblem(w, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: e.Message,
		Code:   e.Code,
		Data:   e.Detail,
	})
}

func statusFor(kind shared.Kind) (int, string) {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest, "Validation Failed"
	case shared.KindNotFound:
		return http.StatusNotFound, "Not Found"
	case shared.KindConflict:
		return http.StatusConflict, "Conflict"
	case shared.KindPermission:
		return http.StatusForbidden, "Forbidden"
	case shared.KindUnavailable:
		return http.StatusServiceUnavailable, "Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// BadRequest reports an undecodable body.
func BadRequest(w http.ResponseWriter, err error) {
	RespondError(w, nil, shared.Validation("malformed request body: "+err.Error()))
}
