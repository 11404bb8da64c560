// Package githubapi implements the Repository Access Provider against the
// GitHub REST API.
package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/joseairosa/codesalvage-sub000/internal/port"
)

// Provider talks to the GitHub REST API with a per-call token.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// NewProvider creates a provider against baseURL (the real API or a test
// server).
func NewProvider(baseURL string) *Provider {
	return &Provider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GrantCollaborator invites username as a collaborator on owner/repo.
// GitHub answers 201 with an invitation body, or 204 when the user already
// has access — both are success.
func (p *Provider) GrantCollaborator(ctx context.Context, owner, repo, username, token string) (*port.GrantResult, error) {
	path := fmt.Sprintf("/repos/%s/%s/collaborators/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(username))

	resp, err := p.do(ctx, http.MethodPut, path, token, map[string]string{"permission": "push"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var inv struct {
			ID int64 `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
			return nil, fmt.Errorf("github: decode invitation: %w", err)
		}
		return &port.GrantResult{InvitationID: inv.ID}, nil
	case http.StatusNoContent:
		return &port.GrantResult{AlreadyCollaborator: true}, nil
	default:
		return nil, classify("grant_collaborator", resp)
	}
}

// CheckCollaboratorAccess reports whether username has access to owner/repo.
func (p *Provider) CheckCollaboratorAccess(ctx context.Context, owner, repo, username, token string) (bool, error) {
	path := fmt.Sprintf("/repos/%s/%s/collaborators/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(username))

	resp, err := p.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, classify("check_collaborator", resp)
	}
}

// RevokeCollaborator removes username's collaborator access.
func (p *Provider) RevokeCollaborator(ctx context.Context, owner, repo, username, token string) error {
	path := fmt.Sprintf("/repos/%s/%s/collaborators/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(username))

	resp, err := p.do(ctx, http.MethodDelete, path, token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return classify("revoke_collaborator", resp)
	}
	return nil
}

// TransferOwnership transfers owner/repo to newOwner. GitHub answers 202
// when the transfer is accepted. This call is not idempotent on the
// platform side.
func (p *Provider) TransferOwnership(ctx context.Context, owner, repo, newOwner, token string) error {
	path := fmt.Sprintf("/repos/%s/%s/transfer", url.PathEscape(owner), url.PathEscape(repo))

	resp, err := p.do(ctx, http.MethodPost, path, token, map[string]string{"new_owner": newOwner})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return classify("transfer_ownership", resp)
	}
	return nil
}

func (p *Provider) do(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("github: marshal body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("github: create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// classify maps a GitHub response onto the closed provider error set.
func classify(op string, resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}

	var class port.ProviderErrorClass
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		class = port.ProviderUnauthorized
	case http.StatusForbidden:
		class = port.ProviderForbidden
	case http.StatusNotFound:
		class = port.ProviderNotFound
	case http.StatusConflict:
		class = port.ProviderConflict
	default:
		// 422 and anything unexpected — the engine retries these.
		class = port.ProviderValidationFailed
	}

	return &port.ProviderError{Class: class, Op: op, Message: body.Message}
}
