package engine

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("ENGINE")

var (
	// User state errors
	CodeUserStateNotFound   = ErrRegistry.Register("USER_STATE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User state not found")
	CodeUserNotInAutomation = ErrRegistry.Register("USER_NOT_IN_AUTOMATION", errx.TypeBusiness, http.StatusConflict, "User is not in an active automation")

	// Webhook errors
	CodeInvalidWebhookPayload = ErrRegistry.Register("INVALID_WEBHOOK_PAYLOAD", errx.TypeValidation, http.StatusBadRequest, "Invalid webhook payload")
	CodeMissingSender         = ErrRegistry.Register("MISSING_SENDER", errx.TypeValidation, http.StatusBadRequest, "Webhook payload has no sender identifier")
	CodeUnsupportedChannel    = ErrRegistry.Register("UNSUPPORTED_CHANNEL", errx.TypeValidation, http.StatusBadRequest, "Unsupported channel")
	CodeWebhookNotFound       = ErrRegistry.Register("WEBHOOK_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Webhook message not found")

	// Walk errors
	CodeNodeDispatchFailed = ErrRegistry.Register("NODE_DISPATCH_FAILED", errx.TypeExternal, http.StatusInternalServerError, "Channel node processing failed")
	CodeWalkInvariant      = ErrRegistry.Register("WALK_INVARIANT", errx.TypeInternal, http.StatusInternalServerError, "Flow walk reached an inconsistent state")
	CodeMissingSelector    = ErrRegistry.Register("MISSING_SELECTOR", errx.TypeInternal, http.StatusInternalServerError, "Node result has no matching selector")

	// Delay errors
	CodeDelayNotFound = ErrRegistry.Register("DELAY_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Delay not found")

	// Schedule errors
	CodeScheduleNotFound      = ErrRegistry.Register("SCHEDULE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Flow schedule not found")
	CodeInvalidScheduleConfig = ErrRegistry.Register("INVALID_SCHEDULE_CONFIG", errx.TypeValidation, http.StatusBadRequest, "Invalid schedule configuration")

	// Identity lock errors
	CodeIdentityLockBusy   = ErrRegistry.Register("IDENTITY_LOCK_BUSY", errx.TypeConflict, http.StatusServiceUnavailable, "Identity is being processed by another request")
	CodeIdentityLockFailed = ErrRegistry.Register("IDENTITY_LOCK_FAILED", errx.TypeInternal, http.StatusServiceUnavailable, "Could not acquire identity lock")

	// API key errors
	CodeAPIKeyNotFound = ErrRegistry.Register("API_KEY_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "API key not found")
	CodeInvalidAPIKey  = ErrRegistry.Register("INVALID_API_KEY", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid API key")
)

// Error constructor functions
func ErrUserStateNotFound() *errx.Error {
	return ErrRegistry.New(CodeUserStateNotFound)
}

func ErrUserNotInAutomation() *errx.Error {
	return ErrRegistry.New(CodeUserNotInAutomation)
}

func ErrInvalidWebhookPayload() *errx.Error {
	return ErrRegistry.New(CodeInvalidWebhookPayload)
}

func ErrMissingSender() *errx.Error {
	return ErrRegistry.New(CodeMissingSender)
}

func ErrUnsupportedChannel() *errx.Error {
	return ErrRegistry.New(CodeUnsupportedChannel)
}

func ErrWebhookNotFound() *errx.Error {
	return ErrRegistry.New(CodeWebhookNotFound)
}

func ErrNodeDispatchFailed() *errx.Error {
	return ErrRegistry.New(CodeNodeDispatchFailed)
}

func ErrWalkInvariant() *errx.Error {
	return ErrRegistry.New(CodeWalkInvariant)
}

func ErrMissingSelector() *errx.Error {
	return ErrRegistry.New(CodeMissingSelector)
}

func ErrDelayNotFound() *errx.Error {
	return ErrRegistry.New(CodeDelayNotFound)
}

func ErrScheduleNotFound() *errx.Error {
	return ErrRegistry.New(CodeScheduleNotFound)
}

func ErrInvalidScheduleConfig() *errx.Error {
	return ErrRegistry.New(CodeInvalidScheduleConfig)
}

func ErrIdentityLockBusy() *errx.Error {
	return ErrRegistry.New(CodeIdentityLockBusy)
}

func ErrIdentityLockFailed() *errx.Error {
	return ErrRegistry.New(CodeIdentityLockFailed)
}

func ErrAPIKeyNotFound() *errx.Error {
	return ErrRegistry.New(CodeAPIKeyNotFound)
}

func ErrInvalidAPIKey() *errx.Error {
	return ErrRegistry.New(CodeInvalidAPIKey)
}
