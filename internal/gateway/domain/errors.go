package domain

import "errors"

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")

	ErrOrderNotFound = errors.New("order_not_found")

	// ErrOrderNotPayable guards against duplicate or stale notifications:
	// the referenced order no longer needs payment.
	ErrOrderNotPayable = errors.New("order_not_payable")

	ErrCaptureNotSupported     = errors.New("capture_not_supported")
	ErrCaptureWindowExpired    = errors.New("capture_window_expired")
	ErrOrderFullyCaptured      = errors.New("order_fully_captured")
	ErrCaptureExceedsRemaining = errors.New("capture_exceeds_remaining")
	ErrCaptureExceedsMaximum   = errors.New("capture_exceeds_maximum")
	ErrNoAuthorization         = errors.New("no_authorization")

	ErrRefundNotSupported = errors.New("refund_not_supported")
	ErrVoidNotAvailable   = errors.New("void_not_available")

	ErrOperationNotSupported = errors.New("operation_not_supported")

	ErrTokenizationNotSupported = errors.New("tokenization_not_supported")
	ErrTokenNotFound            = errors.New("token_not_found")
	ErrTokenNotOwned            = errors.New("token_not_owned")
)
