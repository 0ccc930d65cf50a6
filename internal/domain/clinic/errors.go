package clinic

import (
	"errors"
	"fmt"
	"strings"
)

// Kind clasifica los fallos que cruzan el borde del core.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindValidationFailed       Kind = "validation_failed"
	KindAccessDenied           Kind = "access_denied"
	KindConflict               Kind = "conflict"
	KindSelfModificationDenied Kind = "self_modification_denied"
	KindInvalidRole            Kind = "invalid_role"
	KindStorageFailure         Kind = "storage_failure"
)

// Sentinels para errors.Is. Comparan por Kind, no por identidad.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrValidationFailed       = &Error{Kind: KindValidationFailed}
	ErrAccessDenied           = &Error{Kind: KindAccessDenied}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrSelfModificationDenied = &Error{Kind: KindSelfModificationDenied}
	ErrInvalidRole            = &Error{Kind: KindInvalidRole}
	ErrStorageFailure         = &Error{Kind: KindStorageFailure}
)

// Reasons reportados por CancelByClient.
const (
	ReasonNotFound         = "not-found"
	ReasonAlreadyPast      = "already-past"
	ReasonAlreadyCancelled = "already-cancelled"
)

// FieldError es una violación puntual de un campo.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type Error struct {
	Kind   Kind
	Detail string
	Reason string
	Fields []FieldError
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(" [")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", f.Field, f.Message)
		if i == len(e.Fields)-1 {
			b.WriteString("]")
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

func AccessDenied(format string, args ...any) *Error {
	return &Error{Kind: KindAccessDenied, Detail: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Detail: fmt.Sprintf(format, args...)}
}

func SelfModificationDenied(format string, args ...any) *Error {
	return &Error{Kind: KindSelfModificationDenied, Detail: fmt.Sprintf(format, args...)}
}

func InvalidRole(name string) *Error {
	return &Error{Kind: KindInvalidRole, Detail: fmt.Sprintf("unknown role %q", name)}
}

// Refused es un fallo reportado con un motivo legible por máquina.
func Refused(kind Kind, reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// StorageFailure envuelve un error del store (abort de tx, conexión, etc).
func StorageFailure(err error, format string, args ...any) *Error {
	return &Error{Kind: KindStorageFailure, Detail: fmt.Sprintf(format, args...), Err: err}
}

// Validation acumula errores de campo. Nunca corta en el primero.
type Validation struct {
	fields []FieldError
}

func (v *Validation) Add(field, tag, message string) {
	v.fields = append(v.fields, FieldError{Field: field, Tag: tag, Message: message})
}

func (v *Validation) Merge(fields []FieldError) {
	v.fields = append(v.fields, fields...)
}

func (v *Validation) Has(field string) bool {
	for _, f := range v.fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (v *Validation) Empty() bool { return len(v.fields) == 0 }

// Err devuelve nil si no hubo violaciones.
func (v *Validation) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	out := make([]FieldError, len(v.fields))
	copy(out, v.fields)
	return &Error{Kind: KindValidationFailed, Detail: "invalid input", Fields: out}
}

// KindOf clasifica cualquier error. Lo que no es *Error se trata como falla de storage.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageFailure
}

// AsError normaliza err a *Error para el borde del core.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return StorageFailure(err, "storage operation failed")
}

// RetryOnce vuelve a correr fn una sola vez si el primer intento falló por storage.
// Solo para operaciones idempotentes; el core nunca reintenta por su cuenta.
func RetryOnce(fn func() error) error {
	err := fn()
	if KindOf(err) != KindStorageFailure {
		return err
	}
	return fn()
}
