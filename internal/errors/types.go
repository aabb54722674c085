package errors

import (
	"fmt"
)

// Error define la estructura estándar para errores del runtime.
// Code es estable y forma parte del contrato con los callers; Message es humano.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Err     error  `json:"-"` // causa original, útil para logs, no se expone al cliente
}

// Error implementa la interfaz error
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *Error) Unwrap() error {
	return e.Err
}

// New crea un nuevo Error con código y mensaje.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap crea un Error envolviendo un error existente.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// FromError intenta convertir un error genérico en un *Error.
// Si no lo es, devuelve CONNECTOR::UNKNOWN_ERROR conservando la causa.
func FromError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return ErrUnknown.WithCause(err)
}

// WithDetail agrega detalle adicional (ej: el nombre del setting faltante).
// Devuelve una COPIA para no mutar las variables globales base.
func (e *Error) WithDetail(detail string) *Error {
	ne := *e
	ne.Detail = detail
	return &ne
}

// WithCause agrega el error original (causa). Devuelve una COPIA.
func (e *Error) WithCause(err error) *Error {
	ne := *e
	ne.Err = err
	return &ne
}

// Is permite comparar contra los errores base por código con errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
