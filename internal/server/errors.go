package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/blob"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
	"fieldline/internal/repo"
)

type apiErrorBody struct {
	Code    string         `json:"code" example:"notification_failed"`
	Message string         `json:"message" example:"notify chef_section: storage unavailable"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"advancement\"}"`
}

// apiError is the {"error": {...}} envelope every failure is written in.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var statusCodes = map[int]string{
	http.StatusBadRequest:            "bad_request",
	http.StatusUnauthorized:          "unauthorized",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not_found",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "photo_too_large",
	http.StatusUnprocessableEntity:   "validation_failed",
	http.StatusInternalServerError:   "internal_error",
	http.StatusBadGateway:            "notification_failed",
	http.StatusServiceUnavailable:    "storage_unavailable",
}

func codeForStatus(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = codeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

func badRequest(message string, details map[string]any) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", message, details)
}

// sentinels maps plain error values to a status. Order matters: the first
// match wins.
var sentinels = []struct {
	errs   []error
	status int
}{
	{[]error{repo.ErrNotFound, fs.ErrNotExist}, http.StatusNotFound},
	{[]error{repo.ErrStorageUnavailable, blob.ErrNoStore}, http.StatusServiceUnavailable},
	{[]error{blob.ErrTooLarge}, http.StatusRequestEntityTooLarge},
	{[]error{blob.ErrInvalidName, blob.ErrEmpty, domain.ErrUnknownValue}, http.StatusBadRequest},
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		allowed := make([]string, 0, len(fe.Allowed))
		for _, r := range fe.Allowed {
			allowed = append(allowed, string(r))
		}
		return newAPIError(http.StatusForbidden, "", err.Error(), map[string]any{"role": string(fe.Role), "allowed": allowed})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	// Checked before the sentinels: the cause is often ErrStorageUnavailable.
	var ne *engine.NotificationError
	if errors.As(err, &ne) {
		return newAPIError(http.StatusBadGateway, "", err.Error(), map[string]any{"role": string(ne.Role)})
	}
	for _, s := range sentinels {
		for _, target := range s.errs {
			if errors.Is(err, target) {
				return newAPIError(s.status, "", err.Error(), nil)
			}
		}
	}
	return newAPIError(http.StatusInternalServerError, "", "internal error", map[string]any{"error": err.Error()})
}

func writeError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
