package http

import (
	"encoding/json"
	"net/http"
	"strings"

	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/observability/logger"
)

// errorBody es el envelope JSON de error hacia el caller.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	} `json:"error"`
}

// WriteError serializa un *errors.Error con el status HTTP que le corresponde.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := merrors.FromError(err)
	status := statusFor(e)
	if status >= 500 {
		logger.From(r.Context()).Error("request falló", logger.Err(err), logger.Path(r.URL.Path))
	}

	var body errorBody
	body.Error.Code = e.Code
	body.Error.Message = e.Message
	body.Error.Detail = e.Detail

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor mapea la taxonomía de códigos a status HTTP.
func statusFor(e *merrors.Error) int {
	switch {
	case e.Is(merrors.ErrConnectionNotFound):
		return http.StatusNotFound
	case e.Is(merrors.ErrSessionExpired):
		return http.StatusUnauthorized
	case e.Is(merrors.ErrAccessTokenMissing):
		return http.StatusUnauthorized
	case e.Is(merrors.ErrMissingRequiredSetting),
		e.Is(merrors.ErrAuthTypeNotSupported),
		e.Is(merrors.ErrWebhooksNotSupported):
		return http.StatusBadRequest
	case e.Is(merrors.ErrWebhookValidationFailed):
		return http.StatusForbidden
	case e.Is(merrors.ErrProxyRequestFailed):
		return http.StatusBadGateway
	case strings.HasPrefix(e.Code, "MORPH_CONNECTION_"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON responde un payload con status dado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
