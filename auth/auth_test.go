package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// fakeFlow satisfies ConsentFlow without any listener.
type fakeFlow struct {
	code       string
	err        error
	presented  string
	presentErr error
}

func (f *fakeFlow) PresentURL(url string) error {
	f.presented = url
	return f.presentErr
}

func (f *fakeFlow) AwaitRedirect(ctx context.Context, state string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.code, nil
}

// tokenServer runs a fake OAuth token endpoint and counts hits.
func tokenServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-token","refresh_token":"fresh-refresh","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://example.invalid/auth",
			TokenURL: tokenURL,
		},
		Scopes: []string{"upload"},
	}
}

func writeCredential(t *testing.T, path string, cred Credential) {
	t.Helper()
	data, err := json.Marshal(cred)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestAuthorize_InteractiveFlow(t *testing.T) {
	var hits atomic.Int32
	srv := tokenServer(t, &hits)
	path := filepath.Join(t.TempDir(), "token.json")

	flow := &fakeFlow{code: "auth-code"}
	m := NewManager(testOAuthConfig(srv.URL+"/token"), flow, path)

	if err := m.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if m.State() != StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", m.State())
	}
	if flow.presented == "" {
		t.Error("consent URL was never presented")
	}
	if hits.Load() != 1 {
		t.Errorf("token endpoint hit %d times, want 1", hits.Load())
	}

	// Credential must be persisted.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("credential file not written: %v", err)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		t.Fatalf("credential file not valid JSON: %v", err)
	}
	if cred.AccessToken != "fresh-token" {
		t.Errorf("persisted access token = %q, want fresh-token", cred.AccessToken)
	}
}

func TestAuthorize_UsesPersistedCredential(t *testing.T) {
	var hits atomic.Int32
	srv := tokenServer(t, &hits)
	path := filepath.Join(t.TempDir(), "token.json")

	writeCredential(t, path, Credential{
		AccessToken:  "still-good",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(time.Hour),
	})

	m := NewManager(testOAuthConfig(srv.URL+"/token"), &fakeFlow{code: "unused"}, path)
	if err := m.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if hits.Load() != 0 {
		t.Errorf("token endpoint hit %d times for a fresh persisted credential, want 0", hits.Load())
	}

	tok, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "still-good" {
		t.Errorf("Token() = %q, want still-good", tok)
	}
}

func TestAuthorize_Denied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	flow := &fakeFlow{err: fmt.Errorf("%w: user closed window", ErrAuthDenied)}
	m := NewManager(testOAuthConfig("https://example.invalid/token"), flow, path)

	err := m.Authorize(context.Background())
	if !errors.Is(err, ErrAuthDenied) {
		t.Errorf("Authorize() error = %v, want ErrAuthDenied", err)
	}
}

func TestRefreshIfNeeded_ExpiringSoon(t *testing.T) {
	var hits atomic.Int32
	srv := tokenServer(t, &hits)
	path := filepath.Join(t.TempDir(), "token.json")

	writeCredential(t, path, Credential{
		AccessToken:  "stale",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(30 * time.Second), // inside the 60s leeway
	})

	m := NewManager(testOAuthConfig(srv.URL+"/token"), nil, path)
	if !m.loadPersisted() {
		t.Fatal("loadPersisted() = false")
	}

	ok, err := m.RefreshIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("RefreshIfNeeded() error = %v", err)
	}
	if !ok {
		t.Fatal("RefreshIfNeeded() = false, want true")
	}
	if hits.Load() != 1 {
		t.Errorf("refresh endpoint hit %d times, want exactly 1", hits.Load())
	}

	tok, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "fresh-token" {
		t.Errorf("Token() = %q after refresh, want fresh-token", tok)
	}
}

func TestRefreshIfNeeded_SingleFlight(t *testing.T) {
	var hits atomic.Int32
	srv := tokenServer(t, &hits)
	path := filepath.Join(t.TempDir(), "token.json")

	writeCredential(t, path, Credential{
		AccessToken:  "stale",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(10 * time.Second),
	})

	m := NewManager(testOAuthConfig(srv.URL+"/token"), nil, path)
	if !m.loadPersisted() {
		t.Fatal("loadPersisted() = false")
	}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := m.RefreshIfNeeded(context.Background()); err != nil || !ok {
				t.Errorf("RefreshIfNeeded() = %v, %v", ok, err)
			}
		}()
	}
	wg.Wait()

	if hits.Load() != 1 {
		t.Errorf("refresh endpoint hit %d times under concurrency, want exactly 1", hits.Load())
	}
}

func TestRefreshIfNeeded_FreshTokenIsNoop(t *testing.T) {
	var hits atomic.Int32
	srv := tokenServer(t, &hits)
	path := filepath.Join(t.TempDir(), "token.json")

	writeCredential(t, path, Credential{
		AccessToken:  "good",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(time.Hour),
	})

	m := NewManager(testOAuthConfig(srv.URL+"/token"), nil, path)
	if !m.loadPersisted() {
		t.Fatal("loadPersisted() = false")
	}

	ok, err := m.RefreshIfNeeded(context.Background())
	if err != nil || !ok {
		t.Fatalf("RefreshIfNeeded() = %v, %v", ok, err)
	}
	if hits.Load() != 0 {
		t.Errorf("refresh endpoint hit %d times for a fresh token, want 0", hits.Load())
	}
}

func TestRefreshIfNeeded_ExchangeFailureNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "token.json")
	writeCredential(t, path, Credential{
		AccessToken:  "stale",
		RefreshToken: "revoked-rt",
		Expiry:       time.Now().Add(-time.Minute),
	})

	m := NewManager(testOAuthConfig(srv.URL+"/token"), nil, path)
	if !m.loadPersisted() {
		t.Fatal("loadPersisted() = false")
	}

	ok, err := m.RefreshIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("RefreshIfNeeded() error = %v, want nil (failed exchange is not fatal)", err)
	}
	if ok {
		t.Error("RefreshIfNeeded() = true after failed exchange, want false")
	}

	if _, err := m.Token(context.Background()); !errors.Is(err, ErrAuthExpired) {
		t.Errorf("Token() error = %v, want ErrAuthExpired", err)
	}
}

func TestRefreshIfNeeded_Unauthenticated(t *testing.T) {
	m := NewManager(testOAuthConfig("https://example.invalid/token"), nil, filepath.Join(t.TempDir(), "token.json"))
	if _, err := m.RefreshIfNeeded(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("RefreshIfNeeded() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestRevoke(t *testing.T) {
	var revoked atomic.Int32
	revokeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("revoke request form parse: %v", err)
		}
		if r.PostFormValue("token") == "" {
			t.Error("revoke request carried no token")
		}
		revoked.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer revokeSrv.Close()

	path := filepath.Join(t.TempDir(), "token.json")
	writeCredential(t, path, Credential{
		AccessToken:  "good",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(time.Hour),
	})

	m := NewManager(testOAuthConfig("https://example.invalid/token"), nil, path,
		WithRevokeURL(revokeSrv.URL))
	if !m.loadPersisted() {
		t.Fatal("loadPersisted() = false")
	}

	if err := m.Revoke(context.Background()); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if revoked.Load() != 1 {
		t.Errorf("revocation endpoint hit %d times, want 1", revoked.Load())
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("credential file still exists after revoke")
	}
	if m.State() != StateRevoked {
		t.Errorf("State() = %v after revoke, want revoked", m.State())
	}
}

func TestLoopbackFlow_RoundTrip(t *testing.T) {
	flow := &LoopbackFlow{Addr: "127.0.0.1:0", OpenBrowser: func(string) error { return nil }}
	if err := flow.PresentURL("https://example.invalid/consent"); err != nil {
		t.Fatalf("PresentURL() error = %v", err)
	}

	addr := flow.CallbackAddr()
	if addr == "" {
		t.Fatal("CallbackAddr() empty after PresentURL")
	}

	go func() {
		// Simulate the provider redirecting the browser back.
		resp, err := http.Get("http://" + addr + defaultCallbackPath + "?code=the-code&state=the-state")
		if err == nil {
			resp.Body.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := flow.AwaitRedirect(ctx, "the-state")
	if err != nil {
		t.Fatalf("AwaitRedirect() error = %v", err)
	}
	if code != "the-code" {
		t.Errorf("AwaitRedirect() = %q, want the-code", code)
	}
}

func TestLoopbackFlow_Denied(t *testing.T) {
	flow := &LoopbackFlow{Addr: "127.0.0.1:0", OpenBrowser: func(string) error { return nil }}
	if err := flow.PresentURL("https://example.invalid/consent"); err != nil {
		t.Fatalf("PresentURL() error = %v", err)
	}

	addr := flow.CallbackAddr()
	go func() {
		resp, err := http.Get("http://" + addr + defaultCallbackPath + "?error=access_denied&state=s")
		if err == nil {
			resp.Body.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := flow.AwaitRedirect(ctx, "s"); !errors.Is(err, ErrAuthDenied) {
		t.Errorf("AwaitRedirect() error = %v, want ErrAuthDenied", err)
	}
}

func TestLoopbackFlow_StateMismatch(t *testing.T) {
	flow := &LoopbackFlow{Addr: "127.0.0.1:0", OpenBrowser: func(string) error { return nil }}
	if err := flow.PresentURL("https://example.invalid/consent"); err != nil {
		t.Fatalf("PresentURL() error = %v", err)
	}

	addr := flow.CallbackAddr()
	go func() {
		resp, err := http.Get("http://" + addr + defaultCallbackPath + "?code=c&state=forged")
		if err == nil {
			resp.Body.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := flow.AwaitRedirect(ctx, "expected"); !errors.Is(err, ErrAuthTransport) {
		t.Errorf("AwaitRedirect() error = %v, want ErrAuthTransport", err)
	}
}
