package channels

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("CHANNEL")

// ============================================================================
// Error Codes
// ============================================================================

var (
	// Routing errors
	CodeChannelNotSupported   = ErrRegistry.Register("NOT_SUPPORTED", errx.TypeValidation, http.StatusBadRequest, "Canal no soportado")
	CodeEndpointNotConfigured = ErrRegistry.Register("ENDPOINT_NOT_CONFIGURED", errx.TypeValidation, http.StatusBadRequest, "Canal sin endpoint configurado")

	// Dispatch errors
	CodeDispatchFailed  = ErrRegistry.Register("DISPATCH_FAILED", errx.TypeExternal, http.StatusBadGateway, "Envío al servicio de canal falló")
	CodeDispatchTimeout = ErrRegistry.Register("DISPATCH_TIMEOUT", errx.TypeExternal, http.StatusGatewayTimeout, "Timeout llamando al servicio de canal")
	CodeInvalidResponse = ErrRegistry.Register("INVALID_RESPONSE", errx.TypeExternal, http.StatusBadGateway, "Respuesta inválida del servicio de canal")

	// Archive errors
	CodeArchiveFailed = ErrRegistry.Register("ARCHIVE_FAILED", errx.TypeExternal, http.StatusInternalServerError, "Archivado del payload falló")
)

// ============================================================================
// Error Constructor Functions
// ============================================================================

func ErrChannelNotSupported() *errx.Error {
	return ErrRegistry.New(CodeChannelNotSupported)
}

func ErrEndpointNotConfigured() *errx.Error {
	return ErrRegistry.New(CodeEndpointNotConfigured)
}

func ErrDispatchFailed() *errx.Error {
	return ErrRegistry.New(CodeDispatchFailed)
}

func ErrDispatchTimeout() *errx.Error {
	return ErrRegistry.New(CodeDispatchTimeout)
}

func ErrInvalidResponse() *errx.Error {
	return ErrRegistry.New(CodeInvalidResponse)
}

func ErrArchiveFailed() *errx.Error {
	return ErrRegistry.New(CodeArchiveFailed)
}
