package server

import (
	"errors"
	"net/http"

	"floodwatch/internal/util"
	"floodwatch/services/api/internal/app"
)

// writeAppError maps app errors to status codes. Only messages owned by the
// app package reach the client; anything else is logged and answered with a
// generic 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeMessage(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, app.ErrValidation):
		writeMessage(w, http.StatusBadRequest, app.ErrValidation.Error())
	case errors.Is(err, app.ErrDuplicateIdentity):
		writeMessage(w, http.StatusBadRequest, app.ErrDuplicateIdentity.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrUnauthenticated):
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, app.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, app.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
	case errors.Is(err, app.ErrPhotosDisabled):
		writeMessage(w, http.StatusServiceUnavailable, app.ErrPhotosDisabled.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}
