package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ppiankov/applytrail/internal/logging"
	"github.com/ppiankov/applytrail/internal/model"
)

// Authenticator runs the OAuth2 installed-app flow for read-only Gmail
// access and keeps the token on disk.
type Authenticator struct {
	credentialsFile string
	tokenFile       string
	revokeURL       string
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewAuthenticator creates an authenticator from Gmail configuration
func NewAuthenticator(cfg model.GmailConfig, logger *zap.Logger) *Authenticator {
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = "https://oauth2.googleapis.com/revoke"
	}
	return &Authenticator{
		credentialsFile: cfg.CredentialsFile,
		tokenFile:       cfg.TokenFile,
		revokeURL:       revokeURL,
		httpClient:      http.DefaultClient,
		logger:          logging.OrNop(logger),
	}
}

func (a *Authenticator) oauthConfig(redirectURL string) (*oauth2.Config, error) {
	data, err := os.ReadFile(a.credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read client credentials: %w", model.ErrAuth, err)
	}

	cfg, err := google.ConfigFromJSON(data, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse client credentials: %w", model.ErrAuth, err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// AuthCodeURL returns the consent page URL
func (a *Authenticator) AuthCodeURL(redirectURL, state string) (string, error) {
	cfg, err := a.oauthConfig(redirectURL)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a token and stores it
func (a *Authenticator) Exchange(ctx context.Context, redirectURL, code string) error {
	cfg, err := a.oauthConfig(redirectURL)
	if err != nil {
		return err
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: exchange code: %w", model.ErrAuth, err)
	}

	return a.saveToken(tok)
}

// Authenticated reports whether a stored token exists
func (a *Authenticator) Authenticated() bool {
	_, err := a.loadToken()
	return err == nil
}

// TokenSource returns a refreshing token source backed by the stored token.
// Refreshed tokens are written back to disk.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := a.loadToken()
	if err != nil {
		return nil, err
	}

	cfg, err := a.oauthConfig("")
	if err != nil {
		return nil, err
	}

	return &persistingTokenSource{
		base: oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok)),
		auth: a,
		last: tok.AccessToken,
	}, nil
}

// ServiceFactory builds Gmail clients from the stored token
func (a *Authenticator) ServiceFactory() ServiceFactory {
	return func(ctx context.Context) (*gmail.Service, error) {
		ts, err := a.TokenSource(ctx)
		if err != nil {
			return nil, err
		}
		svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
		if err != nil {
			return nil, fmt.Errorf("%w: create gmail client: %w", model.ErrAuth, err)
		}
		return svc, nil
	}
}

// Revoke invalidates the stored token with Google and deletes it locally.
// It returns true when Google confirmed the revocation.
func (a *Authenticator) Revoke(ctx context.Context) (bool, error) {
	tok, err := a.loadToken()
	if err != nil {
		return false, err
	}

	token := tok.RefreshToken
	if token == "" {
		token = tok.AccessToken
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	revoked := false
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Warn("revoke request failed", zap.Error(err))
	} else {
		_ = resp.Body.Close()
		revoked = resp.StatusCode == http.StatusOK
		if !revoked {
			a.logger.Warn("revoke rejected", zap.Int("status", resp.StatusCode))
		}
	}

	if err := os.Remove(a.tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return revoked, fmt.Errorf("remove token: %w", err)
	}
	return revoked, nil
}

func (a *Authenticator) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.tokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: no stored token (run 'applytrail auth login')", model.ErrAuth)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("%w: corrupt token file: %w", model.ErrAuth, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: empty token", model.ErrAuth)
	}
	return &tok, nil
}

func (a *Authenticator) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenFile), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	tmp := a.tokenFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, a.tokenFile)
}

type persistingTokenSource struct {
	base oauth2.TokenSource
	auth *Authenticator

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: refresh token: %w", model.ErrAuth, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.auth.saveToken(tok); err != nil {
			p.auth.logger.Warn("could not persist refreshed token", zap.Error(err))
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// ReceiveCode serves one OAuth redirect on ln and returns the authorization
// code. The state parameter must match.
func ReceiveCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: consent denied: %s", model.ErrAuth, q.Get("error"))
		case q.Get("state") != state:
			res.err = fmt.Errorf("%w: state mismatch", model.ErrAuth)
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = fmt.Fprintln(w, "Authentication complete. You can close this window.")
		}
		select {
		case done <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Shutdown(context.WithoutCancel(ctx)) }()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.code, res.err
	}
}
