package spotify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	appTokenKey  = "spotify_app_token_v1"
	expiryMargin = 30 * time.Second
)

// KV persists small values across restarts.
type KV interface {
	GetKV(ctx context.Context, key string) (string, bool, error)
	SetKV(ctx context.Context, key, value string) error
}

type storedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// kvTokenSource reuses a persisted client-credentials token while it is
// still valid and stores every fresh one it fetches.
type kvTokenSource struct {
	mu   sync.Mutex
	kv   KV
	base oauth2.TokenSource
	now  func() time.Time
}

func (s *kvTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()

	if raw, ok, err := s.kv.GetKV(ctx, appTokenKey); err == nil && ok {
		var st storedToken
		if json.Unmarshal([]byte(raw), &st) == nil && st.AccessToken != "" &&
			s.now().Add(expiryMargin).Before(st.ExpiresAt) {
			return &oauth2.Token{AccessToken: st.AccessToken, TokenType: "Bearer", Expiry: st.ExpiresAt}, nil
		}
	}

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(storedToken{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry})
	if err := s.kv.SetKV(ctx, appTokenKey, string(raw)); err != nil {
		slog.Warn("failed to cache spotify app token", "err", err)
	}
	return tok, nil
}

// NewAppClient builds a client-credentials client whose token survives
// restarts through kv.
func NewAppClient(ctx context.Context, clientID, clientSecret string, kv KV) *Client {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	ts := oauth2.ReuseTokenSource(nil, &kvTokenSource{kv: kv, base: cc.TokenSource(ctx), now: time.Now})
	return newClient(oauth2.NewClient(ctx, ts))
}

func newClient(hc *http.Client) *Client {
	return &Client{raw: spotify.New(hc, spotify.WithRetry(true))}
}
