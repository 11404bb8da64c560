package port

import (
	"context"
	"errors"
	"fmt"
)

// ProviderErrorClass is the closed classification of hosting-platform
// failures. The engine branches on the class, never on message text.
type ProviderErrorClass string

const (
	ProviderNotFound         ProviderErrorClass = "not_found"
	ProviderForbidden        ProviderErrorClass = "forbidden"
	ProviderConflict         ProviderErrorClass = "conflict"
	ProviderValidationFailed ProviderErrorClass = "validation_failed"
	// ProviderUnauthorized means an expired or revoked credential. It is the
	// one class the engine treats as non-retryable.
	ProviderUnauthorized ProviderErrorClass = "unauthorized"
)

// ProviderError is a typed failure from the Repository Access Provider.
type ProviderError struct {
	Class   ProviderErrorClass
	Op      string // provider operation, e.g. "grant_collaborator"
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s (%s)", e.Op, e.Message, e.Class)
}

// IsProviderUnauthorized reports whether err is the non-retryable
// expired-credential classification.
func IsProviderUnauthorized(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Class == ProviderUnauthorized
}

// ProviderClassOf returns the classification of err, or "" when err is not a
// typed provider failure.
func ProviderClassOf(err error) ProviderErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ""
}

// GrantResult reports the outcome of a collaborator grant. Re-granting an
// existing collaborator is success, not an error.
type GrantResult struct {
	InvitationID        int64
	AlreadyCollaborator bool
}

// RepoAccessProvider abstracts the hosting platform's access primitives.
// Every call is a single remote request; credentials are passed per call and
// never cached by implementations.
type RepoAccessProvider interface {
	// GrantCollaborator invites username as a collaborator on owner/repo.
	GrantCollaborator(ctx context.Context, owner, repo, username, token string) (*GrantResult, error)

	// CheckCollaboratorAccess reports whether username currently has
	// collaborator access to owner/repo.
	CheckCollaboratorAccess(ctx context.Context, owner, repo, username, token string) (bool, error)

	// RevokeCollaborator removes username's collaborator access.
	RevokeCollaborator(ctx context.Context, owner, repo, username, token string) error

	// TransferOwnership irreversibly transfers owner/repo to newOwner. The
	// platform does not guarantee idempotency; callers must serialize
	// concurrent attempts themselves.
	TransferOwnership(ctx context.Context, owner, repo, newOwner, token string) error
}
