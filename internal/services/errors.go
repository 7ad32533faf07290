package services

import "errors"

// Engine errors are synchronous return values; nothing is retried
// internally. Handlers map these onto HTTP codes.
var (
	// Flow creation.
	ErrInvalidFlowDefinition = errors.New("invalid flow definition")

	// State conflicts; the caller should refetch the flow and retry.
	ErrNotCurrentSigner = errors.New("signer is not the current step signer")
	ErrFlowNotActive    = errors.New("flow is not active")
	ErrAlreadySigned    = errors.New("step already signed")

	// Permission failures.
	ErrNotAuthorized = errors.New("caller is not authorized")

	// Reversion preconditions.
	ErrReasonRequired       = errors.New("a reason is required")
	ErrNoActiveSignatures   = errors.New("no active signatures to revert")
	ErrVersionHasSignatures = errors.New("target version has active signatures")
	ErrVersionNotFound      = errors.New("target version not found")

	// Signing token redemption.
	ErrTokenInvalid  = errors.New("signing token invalid or expired")
	ErrTokenConsumed = errors.New("signing token already redeemed")

	// Lookups.
	ErrDocumentNotFound = errors.New("document not found")
	ErrFlowNotFound     = errors.New("flow not found")
	ErrUserNotFound     = errors.New("user not found")
)
