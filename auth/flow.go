package auth

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
)

// ConsentFlow is the capability a front-end provides for the interactive
// authorization round-trip. The manager generates the consent URL; the flow
// presents it to the user and captures the authorization code from the
// OAuth redirect.
type ConsentFlow interface {
	// PresentURL shows the consent page to the user (opens a browser,
	// renders a window, prints a link).
	PresentURL(url string) error
	// AwaitRedirect blocks until the redirect delivers an authorization
	// code. It returns ErrAuthDenied when the user rejected consent.
	AwaitRedirect(ctx context.Context, state string) (string, error)
}

const (
	defaultCallbackAddr = "127.0.0.1:3000"
	defaultCallbackPath = "/oauth2callback"
)

// LoopbackFlow implements ConsentFlow with a localhost HTTP listener that
// receives the OAuth redirect. PresentURL starts the listener before the
// consent page opens so the redirect cannot be missed.
type LoopbackFlow struct {
	// Addr is the listen address for the redirect, e.g. "127.0.0.1:3000".
	Addr string
	// CallbackPath is the redirect path; defaults to "/oauth2callback".
	CallbackPath string
	// OpenBrowser launches the consent URL; when nil the URL is logged for
	// the user to open manually.
	OpenBrowser func(url string) error

	mu     sync.Mutex
	srv    *http.Server
	ln     net.Listener
	result chan redirectResult
}

// CallbackAddr returns the bound listener address once PresentURL has
// started the listener, and the configured address before that. Callers
// building the OAuth redirect URL need the address ahead of the listen.
func (f *LoopbackFlow) CallbackAddr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ln != nil {
		return f.ln.Addr().String()
	}
	if f.Addr != "" {
		return f.Addr
	}
	return defaultCallbackAddr
}

// Path returns the redirect path the listener serves.
func (f *LoopbackFlow) Path() string {
	if f.CallbackPath != "" {
		return f.CallbackPath
	}
	return defaultCallbackPath
}

type redirectResult struct {
	code  string
	state string
	err   error
}

// PresentURL starts the redirect listener (once) and hands the consent URL
// to the user.
func (f *LoopbackFlow) PresentURL(consentURL string) error {
	f.mu.Lock()
	if f.result == nil {
		addr := f.Addr
		if addr == "" {
			addr = defaultCallbackAddr
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			f.mu.Unlock()
			return fmt.Errorf("listen %s: %w", addr, err)
		}

		f.ln = ln
		f.result = make(chan redirectResult, 1)
		mux := http.NewServeMux()
		path := f.CallbackPath
		if path == "" {
			path = defaultCallbackPath
		}
		mux.HandleFunc(path, f.handleRedirect)
		f.srv = &http.Server{Handler: mux}
		go f.srv.Serve(ln)
	}
	f.mu.Unlock()

	if f.OpenBrowser != nil {
		return f.OpenBrowser(consentURL)
	}
	log.Printf("auth: open this URL in a browser to authorize: %s", consentURL)
	return nil
}

// handleRedirect captures the first redirect and answers with a small
// confirmation page.
func (f *LoopbackFlow) handleRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := redirectResult{code: q.Get("code"), state: q.Get("state")}

	if errParam := q.Get("error"); errParam != "" {
		res.err = fmt.Errorf("%w: %s", ErrAuthDenied, errParam)
	} else if res.code == "" {
		res.err = fmt.Errorf("%w: redirect carried no authorization code", ErrAuthTransport)
	}

	// Only the first redirect counts.
	select {
	case f.result <- res:
	default:
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if res.err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "<html><body><h1>Authorization failed</h1><p>You can close this window.</p></body></html>")
		return
	}
	fmt.Fprint(w, "<html><body><h1>Authorization successful</h1><p>You can close this window and return to clipsync.</p></body></html>")
}

// AwaitRedirect blocks until the redirect arrives or ctx is done, then
// shuts the listener down.
func (f *LoopbackFlow) AwaitRedirect(ctx context.Context, state string) (string, error) {
	f.mu.Lock()
	result := f.result
	f.mu.Unlock()
	if result == nil {
		return "", fmt.Errorf("%w: redirect listener not started", ErrAuthTransport)
	}
	defer f.shutdown()

	select {
	case res := <-result:
		if res.err != nil {
			return "", res.err
		}
		if res.state != state {
			return "", fmt.Errorf("%w: state parameter mismatch", ErrAuthTransport)
		}
		return res.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrAuthTransport, ctx.Err())
	}
}

func (f *LoopbackFlow) shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.srv != nil {
		f.srv.Close()
		f.srv = nil
	}
	f.ln = nil
	f.result = nil
}
