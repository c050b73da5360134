package domain

import "errors"

var (
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrNotOrderOwner   = errors.New("not_order_owner")

	ErrClientRoleRequired = errors.New("client_role_required")
	ErrAdminRoleRequired  = errors.New("admin_role_required")

	ErrOrderNotPayable      = errors.New("order_not_payable")
	ErrQuoteNotAccepted     = errors.New("quote_not_accepted")
	ErrMissingHourlyPricing = errors.New("missing_hourly_pricing")
	ErrPaymentAlreadyExists = errors.New("payment_already_exists")

	ErrPaymentNotAuthorized     = errors.New("payment_not_authorized")
	ErrPaymentNotCaptured       = errors.New("payment_not_captured")
	ErrMissingProviderReference = errors.New("missing_provider_reference")
	ErrNoAuthorizedAmount       = errors.New("no_authorized_amount")
	ErrInvalidTransition        = errors.New("invalid_status_transition")

	ErrProviderNotFound  = errors.New("provider_not_found")
	ErrInvalidConfig     = errors.New("invalid_provider_config")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrInvalidProvider   = errors.New("invalid_provider")
	ErrEventIgnored      = errors.New("event_ignored")
	ErrRefundUnsupported = errors.New("refund_unsupported")
)
