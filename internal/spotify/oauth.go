package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/sonroyaalmerol/tansen/internal/repository"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

var ErrNotLinked = errors.New("spotify account not linked")

var userScopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserLibraryRead,
}

type UserStore interface {
	GetSpotifyUser(ctx context.Context, userID string) (*repository.SpotifyUser, error)
	SetSpotifyUser(ctx context.Context, u repository.SpotifyUser) error
	DeleteSpotifyUser(ctx context.Context, userID string) error
}

// UserAuth links Discord users to their Spotify accounts with the
// authorization code flow. Users open the link, approve, and paste the
// URL they were redirected to back into the bot.
type UserAuth struct {
	cfg   oauth2.Config
	store UserStore
}

func NewUserAuth(clientID, clientSecret, redirectURI string, store UserStore) *UserAuth {
	return &UserAuth{
		cfg: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       userScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		},
		store: store,
	}
}

// LinkURL is the consent page for userID. The user id doubles as state.
func (a *UserAuth) LinkURL(userID string) string {
	return a.cfg.AuthCodeURL(userID)
}

// CodeFromInput accepts either the full redirect URL or a bare code.
func CodeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty input")
	}
	if !strings.Contains(input, "://") && !strings.Contains(input, "?") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("spotify refused authorization: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("no code in redirect URL")
	}
	return code, nil
}

// Complete exchanges the pasted redirect for tokens and stores them.
func (a *UserAuth) Complete(ctx context.Context, userID, input string) error {
	code, err := CodeFromInput(input)
	if err != nil {
		return err
	}
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("spotify token exchange: %w", err)
	}
	return a.store.SetSpotifyUser(ctx, repository.SpotifyUser{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	})
}

// Unlink forgets the stored tokens for userID.
func (a *UserAuth) Unlink(ctx context.Context, userID string) error {
	return a.store.DeleteSpotifyUser(ctx, userID)
}

// Revoked reports whether err means the stored refresh token no longer
// works and the user has to link again.
func Revoked(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}

// Client returns an API client acting as userID. Refreshed tokens are
// written back to the store.
func (a *UserAuth) Client(ctx context.Context, userID string) (*Client, error) {
	u, err := a.store.GetSpotifyUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.RefreshToken == "" {
		return nil, ErrNotLinked
	}
	tok := &oauth2.Token{
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		Expiry:       u.ExpiresAt,
		TokenType:    "Bearer",
	}
	ts := &persistingSource{
		userID: userID,
		store:  a.store,
		base:   a.cfg.TokenSource(ctx, tok),
		last:   tok.AccessToken,
	}
	return newClient(oauth2.NewClient(ctx, ts)), nil
}

type persistingSource struct {
	userID string
	store  UserStore
	base   oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		err := p.store.SetSpotifyUser(context.Background(), repository.SpotifyUser{
			UserID:       p.userID,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    tok.Expiry,
		})
		if err != nil {
			slog.Warn("failed to persist refreshed spotify token", "userID", p.userID, "err", err)
		}
	}
	return tok, nil
}
