package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		typ     string
		id      string
		wantErr bool
	}{
		{"spotify:track:abc123", "track", "abc123", false},
		{"https://open.spotify.com/album/xyz?si=1", "album", "xyz", false},
		{"https://open.spotify.com/intl-de/playlist/p1", "playlist", "p1", false},
		{"https://open.spotify.com/artist/a9", "artist", "a9", false},
		{"https://open.spotify.com/show/s1", "", "", true},
		{"https://example.com/track/abc", "", "", true},
		{"spotify:track", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, id, err := ParseID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.id, string(id))
		})
	}
}

func TestCodeFromInput(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare code", "  AQDcode  ", "AQDcode", false},
		{"redirect URL", "http://localhost:8888/callback?code=xyz&state=u1", "xyz", false},
		{"denied", "http://localhost:8888/callback?error=access_denied", "", true},
		{"no code", "http://localhost:8888/callback?state=u1", "", true},
		{"empty", "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CodeFromInput(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type memKV map[string]string

func (m memKV) GetKV(_ context.Context, k string) (string, bool, error) {
	v, ok := m[k]
	return v, ok, nil
}

func (m memKV) SetKV(_ context.Context, k, v string) error {
	m[k] = v
	return nil
}

type countingSource struct {
	calls int
	tok   *oauth2.Token
}

func (c *countingSource) Token() (*oauth2.Token, error) {
	c.calls++
	return c.tok, nil
}

func TestKVTokenSource(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fetches and stores when empty", func(t *testing.T) {
		kv := memKV{}
		base := &countingSource{tok: &oauth2.Token{AccessToken: "fresh", Expiry: now.Add(time.Hour)}}
		ts := &kvTokenSource{kv: kv, base: base, now: func() time.Time { return now }}

		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "fresh", tok.AccessToken)
		assert.Equal(t, 1, base.calls)

		var st storedToken
		require.NoError(t, json.Unmarshal([]byte(kv[appTokenKey]), &st))
		assert.Equal(t, "fresh", st.AccessToken)
	})

	t.Run("reuses a valid stored token", func(t *testing.T) {
		raw, _ := json.Marshal(storedToken{AccessToken: "cached", ExpiresAt: now.Add(10 * time.Minute)})
		kv := memKV{appTokenKey: string(raw)}
		base := &countingSource{tok: &oauth2.Token{AccessToken: "fresh"}}
		ts := &kvTokenSource{kv: kv, base: base, now: func() time.Time { return now }}

		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "cached", tok.AccessToken)
		assert.Zero(t, base.calls)
	})

	t.Run("refreshes inside the expiry margin", func(t *testing.T) {
		raw, _ := json.Marshal(storedToken{AccessToken: "stale", ExpiresAt: now.Add(10 * time.Second)})
		kv := memKV{appTokenKey: string(raw)}
		base := &countingSource{tok: &oauth2.Token{AccessToken: "fresh", Expiry: now.Add(time.Hour)}}
		ts := &kvTokenSource{kv: kv, base: base, now: func() time.Time { return now }}

		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "fresh", tok.AccessToken)
		assert.Equal(t, 1, base.calls)
	})
}

func TestLinkURLCarriesState(t *testing.T) {
	a := NewUserAuth("cid", "secret", "http://localhost/cb", nil)
	u := a.LinkURL("user-42")
	assert.Contains(t, u, "state=user-42")
	assert.Contains(t, u, "client_id=cid")
	assert.Contains(t, u, "playlist-read-private")
}

func TestRevoked(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"invalid grant", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, true},
		{"wrapped", fmt.Errorf("refresh: %w", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}), true},
		{"other oauth error", &oauth2.RetrieveError{ErrorCode: "invalid_client"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Revoked(tc.err))
		})
	}
}
