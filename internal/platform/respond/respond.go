package respond

import (
	"encoding/json"
	"net/http"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/platform/logger"
)

// Antes writeJSON estaba duplicado por módulo; con tres módulos ya conviene
// tenerlo en un solo lugar junto con el mapeo de errores.

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type ErrorBody struct {
	Error  clinic.Kind         `json:"error"`
	Detail string              `json:"detail,omitempty"`
	Reason string              `json:"reason,omitempty"`
	Fields []clinic.FieldError `json:"fields,omitempty"`
}

// StatusOf traduce el Kind a HTTP.
func StatusOf(kind clinic.Kind) int {
	switch kind {
	case clinic.KindNotFound:
		return http.StatusNotFound
	case clinic.KindValidationFailed:
		return http.StatusUnprocessableEntity
	case clinic.KindAccessDenied, clinic.KindSelfModificationDenied:
		return http.StatusForbidden
	case clinic.KindConflict:
		return http.StatusConflict
	case clinic.KindInvalidRole:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// Error escribe el error estructurado. Las fallas de storage se loguean y no
// exponen el error interno.
func Error(w http.ResponseWriter, log logger.Logger, err error) {
	e := clinic.AsError(err)
	body := ErrorBody{Error: e.Kind, Detail: e.Detail, Reason: e.Reason, Fields: e.Fields}

	if e.Kind == clinic.KindStorageFailure {
		if log != nil {
			log.Error("storage failure", map[string]any{"err": err})
		}
		body.Detail = "storage unavailable, try again"
	}

	JSON(w, StatusOf(e.Kind), body)
}

// Message es para errores del borde HTTP (json inválido, sin auth).
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}
