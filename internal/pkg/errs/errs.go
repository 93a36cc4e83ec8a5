// Package errs holds the sentinel errors shared across the launch protocol
// and assessment engine. Callers classify failures with errors.Is and decide
// per surface how much detail to expose.
package errs

import "errors"

var (
	// ErrUnknownIssuer is returned when a login or launch names an issuer
	// that is not in the platform trust registry.
	ErrUnknownIssuer = errors.New("unknown issuer")
	// ErrUnknownClient is returned when the client_id does not match the
	// registration for the issuer.
	ErrUnknownClient = errors.New("unknown client")
	// ErrSignatureInvalid covers bad signatures and disallowed algorithms.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrKeyNotFound means the token's key id could not be resolved against
	// the issuer's published keyset, even after a refresh.
	ErrKeyNotFound = errors.New("key not found")
	// ErrExpired covers exp/iat violations beyond the allowed skew.
	ErrExpired = errors.New("token expired")
	// ErrReplayOrExpired is returned when a state/nonce pair is absent,
	// already consumed, or past its window.
	ErrReplayOrExpired = errors.New("replayed or expired login state")
	// ErrMalformedAssertion covers missing or mismatched required claims on
	// an otherwise validly signed assertion.
	ErrMalformedAssertion = errors.New("malformed launch assertion")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// ErrBankExhausted means no unasked question remains in the bank for
	// any reachable level.
	ErrBankExhausted = errors.New("question bank exhausted")

	// ErrGradeDeliveryTransient is returned once the retry budget for a
	// grade submission is spent on retryable failures.
	ErrGradeDeliveryTransient = errors.New("grade delivery failed (transient)")
	// ErrGradeDeliveryTerminal is returned on non-retryable (auth/config)
	// rejections from the platform.
	ErrGradeDeliveryTerminal = errors.New("grade delivery failed (terminal)")
)
