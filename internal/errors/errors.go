// Package errors define la taxonomía de errores del runtime.
//
// Los códigos son parte del contrato: los callers hacen matching por Code,
// nunca por Message. Las operaciones del runtime retornan (valor, error) y
// exactamente uno de los dos está seteado.
package errors

// =================================================================================
// CONEXIONES
// =================================================================================

var (
	ErrConnectionCreateFailed = &Error{
		Code:    "MORPH_CONNECTION_CREATE_FAILED",
		Message: "No se pudo crear la conexión.",
	}

	ErrConnectionUpdateFailed = &Error{
		Code:    "MORPH_CONNECTION_UPDATE_FAILED",
		Message: "No se pudo actualizar la conexión.",
	}

	ErrConnectionRetrieveFailed = &Error{
		Code:    "MORPH_CONNECTION_RETRIEVE_FAILED",
		Message: "No se pudo obtener la conexión.",
	}

	ErrConnectionNotFound = &Error{
		Code:    "MORPH_CONNECTION_NOT_FOUND",
		Message: "La conexión no existe.",
	}

	ErrConnectionDeleteFailed = &Error{
		Code:    "MORPH_CONNECTION_DELETE_FAILED",
		Message: "No se pudo eliminar la conexión.",
	}

	ErrMissingRequiredSetting = &Error{
		Code:    "MORPH_CONNECTION_MISSING_REQUIRED_SETTING",
		Message: "Falta un setting requerido por el connector.",
	}

	ErrAuthTypeNotSupported = &Error{
		Code:    "MORPH::CONNECTION::AUTHORIZATION_TYPE_NOT_SUPPORTED",
		Message: "El tipo de autorización del connector no está soportado para esta operación.",
	}

	ErrAccessTokenMissing = &Error{
		Code:    "MORPH::CONNECTION::ACCESS_TOKEN_MISSING",
		Message: "La conexión no tiene un access token almacenado.",
	}
)

// =================================================================================
// SESIONES
// =================================================================================

var (
	ErrSessionExpired = &Error{
		Code:    "MORPH_SESSION_EXPIRED",
		Message: "La sesión expiró o su firma es inválida.",
	}
)

// =================================================================================
// PROXY
// =================================================================================

var (
	ErrProxyRequestFailed = &Error{
		Code:    "MORPH_PROXY_REQUEST_FAILED",
		Message: "La llamada HTTP al provider falló.",
	}
)

// =================================================================================
// WEBHOOKS
// =================================================================================

var (
	ErrWebhooksNotSupported = &Error{
		Code:    "CONNECTOR::WEBHOOKS_NOT_SUPPORTED",
		Message: "El connector no soporta webhooks para este evento.",
	}

	ErrWebhookValidationFailed = &Error{
		Code:    "CONNECTOR::WEBHOOK::VALIDATION_FAILED",
		Message: "La firma del webhook entrante no pudo ser verificada.",
	}

	ErrWebhookCreateFailed = &Error{
		Code:    "ADAPTER::WEBHOOK::CREATE_FAILED",
		Message: "No se pudo persistir el registro del webhook.",
	}

	ErrWebhookDeleteFailed = &Error{
		Code:    "ADAPTER::WEBHOOK::DELETE_FAILED",
		Message: "No se pudo eliminar el registro del webhook.",
	}
)

// =================================================================================
// GENÉRICOS
// =================================================================================

var (
	ErrUnknown = &Error{
		Code:    "CONNECTOR::UNKNOWN_ERROR",
		Message: "Ocurrió un error inesperado.",
	}
)
