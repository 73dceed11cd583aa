// Package auth owns the OAuth credential lifecycle: interactive
// authorization, persistence, refresh, and revocation. Exactly one live
// credential exists per Manager; every remote call obtains its bearer token
// through Token or TokenSource, which refresh first when the credential is
// about to expire.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"clipsync/storage"
)

// Sentinel errors for authorization outcomes.
var (
	// ErrAuthDenied indicates the user cancelled or rejected the consent step.
	ErrAuthDenied = errors.New("auth: authorization denied")
	// ErrAuthTransport indicates the redirect or callback could not be completed.
	ErrAuthTransport = errors.New("auth: authorization transport failed")
	// ErrAuthExpired indicates the credential is expired and could not be refreshed.
	ErrAuthExpired = errors.New("auth: credential expired")
	// ErrNotAuthenticated indicates no credential is loaded.
	ErrNotAuthenticated = errors.New("auth: not authenticated")
)

// RefreshLeeway is how close to expiry a token may get before a refresh is
// forced ahead of a remote call.
const RefreshLeeway = 60 * time.Second

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// Credential is the persisted OAuth token material. JSON keys match the
// credential file layout older installs already have on disk.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiryTimestamp"`
}

// State describes the manager's position in the credential lifecycle.
type State int

const (
	// StateUnauthenticated means no credential is loaded.
	StateUnauthenticated State = iota
	// StateAuthenticated means a credential is loaded (valid or refreshable).
	StateAuthenticated
	// StateRevoked means the credential was revoked and deleted.
	StateRevoked
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Manager acquires, refreshes, persists, and revokes the process credential.
// All methods are safe for concurrent use; the refresh exchange is
// single-flighted so racing upload workers share one refresh call.
type Manager struct {
	cfg  *oauth2.Config
	flow ConsentFlow
	path string

	httpClient *http.Client
	revokeURL  string

	mu    sync.Mutex
	cred  *Credential
	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for token exchange, refresh, and
// revocation. Useful both for tests and for routing through the resilient
// transport.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithRevokeURL overrides the revocation endpoint.
func WithRevokeURL(u string) Option {
	return func(m *Manager) { m.revokeURL = u }
}

// NewManager creates a credential manager persisting to credPath. The flow
// may be nil for non-interactive use; Authorize then fails when no persisted
// credential is usable.
func NewManager(cfg *oauth2.Config, flow ConsentFlow, credPath string, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		flow:      flow,
		path:      credPath,
		revokeURL: googleRevokeURL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Authorize makes the manager authenticated. A persisted credential is
// loaded and refreshed if possible; otherwise the interactive consent
// round-trip runs (present a consent URL, capture the authorization code
// from the redirect, exchange it for tokens) and the result is persisted.
func (m *Manager) Authorize(ctx context.Context) error {
	if m.loadPersisted() {
		if ok, err := m.RefreshIfNeeded(ctx); err == nil && ok {
			return nil
		}
		log.Printf("auth: persisted credential unusable, starting interactive authorization")
	}
	return m.interactiveAuthorize(ctx)
}

func (m *Manager) interactiveAuthorize(ctx context.Context) error {
	if m.flow == nil {
		return fmt.Errorf("%w: no consent flow configured", ErrAuthTransport)
	}

	state := uuid.NewString()
	consentURL := m.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))

	if err := m.flow.PresentURL(consentURL); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthTransport, err)
	}

	code, err := m.flow.AwaitRedirect(ctx, state)
	if err != nil {
		if errors.Is(err, ErrAuthDenied) || errors.Is(err, ErrAuthTransport) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrAuthTransport, err)
	}

	tok, err := m.cfg.Exchange(m.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("auth: code exchange: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	m.state = StateAuthenticated
	return m.saveLocked()
}

// RefreshIfNeeded refreshes the access token when it expires within
// RefreshLeeway. It reports whether the credential is valid afterwards; a
// failed refresh exchange returns (false, nil) so the caller can fall back
// to re-authorization. Concurrent callers queue on the manager lock and see
// the refreshed credential without issuing a second exchange.
func (m *Manager) RefreshIfNeeded(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil || m.state != StateAuthenticated {
		return false, ErrNotAuthenticated
	}

	if m.cred.AccessToken != "" && time.Until(m.cred.Expiry) > RefreshLeeway {
		return true, nil
	}

	if m.cred.RefreshToken == "" {
		return false, nil
	}

	src := m.cfg.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: m.cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		log.Printf("auth: token refresh failed: %v", err)
		return false, nil
	}

	m.cred.AccessToken = tok.AccessToken
	m.cred.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		m.cred.RefreshToken = tok.RefreshToken
	}
	if err := m.saveLocked(); err != nil {
		log.Printf("auth: persist refreshed credential: %v", err)
	}
	return true, nil
}

// Token returns a non-expired bearer token, refreshing first when needed.
func (m *Manager) Token(ctx context.Context) (string, error) {
	ok, err := m.RefreshIfNeeded(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAuthExpired
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.AccessToken, nil
}

// TokenSource adapts the manager to oauth2.TokenSource so the API client
// obtains a fresh token immediately before every call.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{m: m, ctx: ctx}
}

type managerTokenSource struct {
	m   *Manager
	ctx context.Context
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	ok, err := s.m.RefreshIfNeeded(s.ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuthExpired
	}

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return &oauth2.Token{
		AccessToken:  s.m.cred.AccessToken,
		RefreshToken: s.m.cred.RefreshToken,
		Expiry:       s.m.cred.Expiry,
	}, nil
}

// Revoke invalidates the credential server-side and deletes the persisted copy.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil {
		return ErrNotAuthenticated
	}

	token := m.cred.RefreshToken
	if token == "" {
		token = m.cred.AccessToken
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("auth: revoke: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := m.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: revoke: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: revoke: unexpected status %s", resp.Status)
	}

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &storage.StorageError{Op: "delete", Entity: "credential", ID: m.path, Err: err}
	}

	m.cred = nil
	m.state = StateRevoked
	return nil
}

// loadPersisted loads the credential file if no credential is in memory yet.
// Returns true when a credential is available afterwards.
func (m *Manager) loadPersisted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred != nil {
		return m.state == StateAuthenticated
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("auth: read credential: %v", err)
		}
		return false
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		log.Printf("auth: credential file corrupt: %v", err)
		return false
	}

	m.cred = &cred
	m.state = StateAuthenticated
	return true
}

// saveLocked persists the credential atomically. Caller must hold m.mu.
func (m *Manager) saveLocked() error {
	writer, err := storage.NewAtomicWriter(m.path)
	if err != nil {
		return &storage.StorageError{Op: "write", Entity: "credential", ID: m.path, Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m.cred); err != nil {
		writer.Abort()
		return &storage.StorageError{Op: "write", Entity: "credential", ID: m.path, Err: err}
	}
	if err := writer.Commit(); err != nil {
		return &storage.StorageError{Op: "write", Entity: "credential", ID: m.path, Err: err}
	}
	return nil
}

// oauthContext routes oauth2's internal HTTP calls through the configured client.
func (m *Manager) oauthContext(ctx context.Context) context.Context {
	if m.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	return ctx
}
