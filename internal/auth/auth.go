// Package auth handles the Google OAuth2 flow and token caching for
// calsync. Credentials and the cached token live under the config
// directory (~/.config/calsync/).
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/fbgallet/calsync/internal/config"
)

const (
	// CredentialsFile is the OAuth client secrets file downloaded from the
	// Google Cloud console, expected under the config directory.
	CredentialsFile = "credentials.json"

	// TokenFile caches the obtained OAuth token next to the credentials.
	TokenFile = "token.json"

	// redirectPort is the local port the authorization flow listens on to
	// capture the redirect. It must match the redirect URI registered for
	// the OAuth client.
	redirectPort = "6789"

	// authTimeout bounds how long the flow waits for the user to approve.
	authTimeout = 5 * time.Minute
)

// scopes covers both the event calendars and the task lists calsync syncs.
var scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
	tasks.TasksScope,
}

// oauthConfig loads the client secrets and forces the redirect URI onto
// the local capture port.
func oauthConfig() (*oauth2.Config, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, CredentialsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secrets %s: %w", path, err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secrets: %w", err)
	}
	cfg.RedirectURL = "http://localhost:" + redirectPort + "/oauth2callback"
	return cfg, nil
}

// Client returns an HTTP client with a valid token, refreshing a cached
// token or running the browser authorization flow when none exists.
func Client(ctx context.Context) (*http.Client, error) {
	cfg, err := oauthConfig()
	if err != nil {
		return nil, err
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	tokenPath := filepath.Join(dir, TokenFile)

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		tok, err = tokenFromWeb(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenPath, tok); err != nil {
			return nil, err
		}
	}

	// Persist refreshed tokens so the next run skips the browser flow.
	source := oauth2.ReuseTokenSource(tok, &savingSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenPath,
	})
	return oauth2.NewClient(ctx, source), nil
}

// savingSource writes every freshly minted token back to disk.
type savingSource struct {
	base oauth2.TokenSource
	path string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if err := saveToken(s.path, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// tokenFromWeb runs the authorization code flow: a local server captures
// the redirect while the user approves access in a browser.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", ":"+redirectPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", redirectPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "authorization code missing", http.StatusBadRequest)
				errCh <- fmt.Errorf("authorization code missing from redirect")
				return
			}
			fmt.Fprint(w, "Authentication successful. You can close this window.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open the following URL in your browser to authorize calsync:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(exchangeCtx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(authTimeout):
		return nil, fmt.Errorf("authorization timed out after %s", authTimeout)
	}
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode cached token %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write token cache %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// CalendarService builds an authenticated Google Calendar service.
func CalendarService(ctx context.Context) (*calendar.Service, error) {
	client, err := Client(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return srv, nil
}

// TasksService builds an authenticated Google Tasks service.
func TasksService(ctx context.Context) (*tasks.Service, error) {
	client, err := Client(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := tasks.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return srv, nil
}
