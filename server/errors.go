package server

import (
	"errors"

	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

var (
	// ErrInvalidGrant is returned for an unknown, mismatched, already used or
	// malformed token or code. It carries no detail about which check failed.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrTokenExpired is returned when a record is found but its validity
	// window has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidRequest is returned when a create call has unusable arguments.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimited is returned when the caller exceeded its grant budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidTicket is returned when a stored ticket cannot be opened.
	ErrInvalidTicket = security.ErrInvalidTicket

	// ErrStorageUnavailable is returned when the record store failed or timed out.
	ErrStorageUnavailable = storage.ErrStorageUnavailable
)

// Failure reasons recorded in logs, audit events and metrics. They never
// reach the caller.
const (
	reasonNotFound         = "not_found"
	reasonHashMismatch     = "hash_mismatch"
	reasonWrongKind        = "wrong_record_kind"
	reasonRedirectMismatch = "redirect_uri_mismatch"
	reasonClientMismatch   = "client_id_mismatch"
	reasonExpired          = "expired"
	reasonInvalidTicket    = "invalid_ticket"
	reasonStorage          = "storage_unavailable"
	reasonSubjectLookup    = "subject_lookup_failed"
	reasonRateLimited      = "rate_limited"
)
