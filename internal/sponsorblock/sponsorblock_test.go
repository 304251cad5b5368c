package sponsorblock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/cache"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	out := merge([]Span{{30, 40}, {0, 10}, {5, 12}, {12, 14}})
	assert.Equal(t, []Span{{0, 14}, {30, 40}}, out)
}

func TestCut(t *testing.T) {
	cases := []struct {
		name       string
		spans      []Span
		start, end int
		wantStart  int
		wantEnd    int
		notes      []string
	}{
		{"intro and outro", []Span{{0, 8}, {190, 200}}, 0, 200, 8, 190, []string{"skipped intro", "trimmed outro"}},
		{"middle only", []Span{{50, 60}}, 0, 200, 0, 200, nil},
		{"intro within slack", []Span{{1.5, 10}}, 0, 200, 10, 200, []string{"skipped intro"}},
		{"window after offset", []Span{{0, 8}, {100, 112}}, 100, 150, 112, 150, []string{"skipped intro"}},
		{"span covers everything", []Span{{0, 200}}, 0, 200, 0, 200, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, notes := cut(tc.spans, tc.start, tc.end)
			assert.Equal(t, tc.wantStart, start)
			assert.Equal(t, tc.wantEnd, end)
			assert.Equal(t, tc.notes, notes)
		})
	}
}

func newTestApplier(t *testing.T, handler http.HandlerFunc) *Applier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Applier{
		client: &Client{http: srv.Client(), base: srv.URL, gate: utils.NewGate(1, 0)},
		spans:  cache.NewTTL[[]Span](time.Hour),
		pause:  time.Minute,
	}
}

func song(sec int) *repository.Song {
	return &repository.Song{Title: "t", Duration: &sec}
}

func TestTrimSong(t *testing.T) {
	var calls atomic.Int32
	a := newTestApplier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "vid", r.URL.Query().Get("videoID"))
		assert.Equal(t, category, r.URL.Query().Get("category"))
		_, _ = w.Write([]byte(`[{"category":"music_offtopic","segment":[0,8]},{"category":"music_offtopic","segment":[190,200]}]`))
	})

	s := song(200)
	note := a.Trim(context.Background(), "vid", s)
	assert.Equal(t, "skipped intro and trimmed outro", note)
	assert.Equal(t, 8, s.Offset)
	assert.Equal(t, 182, s.Length)

	// cached
	a.Trim(context.Background(), "vid", song(200))
	assert.EqualValues(t, 1, calls.Load())
}

func TestTrimNoSegments(t *testing.T) {
	a := newTestApplier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	s := song(200)
	assert.Empty(t, a.Trim(context.Background(), "vid", s))
	assert.Zero(t, s.Offset)
	assert.Zero(t, s.Length)
}

func TestTrimPausesWhenUnavailable(t *testing.T) {
	var calls atomic.Int32
	a := newTestApplier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	})

	assert.Empty(t, a.Trim(context.Background(), "vid", song(200)))
	assert.Empty(t, a.Trim(context.Background(), "vid2", song(200)))
	assert.EqualValues(t, 1, calls.Load())
}

func TestTrimSkipsLive(t *testing.T) {
	a := newTestApplier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "no lookup expected")
	})
	s := song(200)
	s.IsLive = true
	assert.Empty(t, a.Trim(context.Background(), "vid", s))
	require.Zero(t, s.Offset)
}
