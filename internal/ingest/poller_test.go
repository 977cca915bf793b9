package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"whalewatch/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

// ========== Test Helpers ==========

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

type recordingSink struct {
	mu       sync.Mutex
	payloads []string
}

func (s *recordingSink) HandleRaw(_ context.Context, data []byte) {
	s.mu.Lock()
	s.payloads = append(s.payloads, string(data))
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func (s *recordingSink) joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.payloads, "\n")
}

func eventJSON(seq uint64) string {
	return fmt.Sprintf(`{"seq":%d,"tx_hash":"0xabc%d","side":"buy"}`, seq, seq)
}

func batchJSON(seqs ...uint64) string {
	parts := make([]string, 0, len(seqs))
	for _, s := range seqs {
		parts = append(parts, eventJSON(s))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func pollConfig(url string) config.PollSourceConfig {
	return config.PollSourceConfig{
		Name:      "test",
		BaseURL:   url,
		Interval:  10 * time.Millisecond,
		PageLimit: 100,
		Timeout:   time.Second,
	}
}

// ========== Constructor Tests ==========

func TestNewPoller_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewPoller(newTestLogger(), config.PollSourceConfig{}, &recordingSink{})
	assert.Error(t, err)

	_, err = NewPoller(newTestLogger(), config.PollSourceConfig{BaseURL: "http://x"}, nil)
	assert.Error(t, err)

	p, err := NewPoller(newTestLogger(), config.PollSourceConfig{BaseURL: "http://x"}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, defaultPollInterval, p.interval)
	assert.Equal(t, defaultPageLimit, p.pageLimit)
	assert.Equal(t, "poll:http://x", p.Name())
}

// ========== Cursor Tests ==========

func TestPoller_ForwardsAndAdvancesWatermark(t *testing.T) {
	t.Parallel()

	var sinceSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since := r.URL.Query().Get("since")
		sinceSeen = append(sinceSeen, since)
		if since == "0" {
			fmt.Fprint(w, batchJSON(1, 2, 3))
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	sink := &recordingSink{}
	p, err := NewPoller(newTestLogger(), pollConfig(srv.URL), sink)
	require.NoError(t, err)

	ctx := context.Background()
	n, err := p.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, uint64(3), p.Watermark())

	// next pass asks strictly after the new watermark
	_, err = p.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "3"}, sinceSeen)
	assert.Equal(t, uint64(3), p.Watermark())
	assert.Equal(t, 3, sink.count())
}

func TestPoller_SkipsReplayedEvents(t *testing.T) {
	t.Parallel()

	// upstream ignores since and replays an overlapping page
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, batchJSON(2, 3, 4))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	p, err := NewPoller(newTestLogger(), pollConfig(srv.URL), sink)
	require.NoError(t, err)

	p.watermark.Store(3)

	_, err = p.poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sink.count(), "only the strictly newer event goes through")
	assert.Contains(t, sink.joined(), `"seq":4`)
	assert.Equal(t, uint64(4), p.Watermark())
}

func TestPoller_WatermarkSurvivesErrors(t *testing.T) {
	t.Parallel()

	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, batchJSON(7))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	p, err := NewPoller(newTestLogger(), pollConfig(srv.URL), sink)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.poll(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(7), p.Watermark())

	fail = true
	_, err = p.poll(ctx)
	assert.Error(t, err)
	assert.Equal(t, uint64(7), p.Watermark(), "failed pass must not move the cursor")

	// pass swallows the error, next tick retries same range
	p.pass(ctx)
	assert.Equal(t, uint64(7), p.Watermark())
	assert.Equal(t, 1, sink.count())
}

func TestPoller_DrainsFullPages(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("since") {
		case "0":
			fmt.Fprint(w, batchJSON(1, 2))
		case "2":
			fmt.Fprint(w, batchJSON(3, 4))
		default:
			fmt.Fprint(w, batchJSON(5))
		}
	}))
	defer srv.Close()

	cfg := pollConfig(srv.URL)
	cfg.PageLimit = 2

	sink := &recordingSink{}
	p, err := NewPoller(newTestLogger(), cfg, sink)
	require.NoError(t, err)

	p.pass(context.Background())

	assert.Equal(t, 3, calls, "keep pulling while pages are full")
	assert.Equal(t, 5, sink.count())
	assert.Equal(t, uint64(5), p.Watermark())
}

func TestPoller_StuckUpstreamStopsDraining(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// always the same full page, cursor never moves
		fmt.Fprint(w, batchJSON(1, 2))
	}))
	defer srv.Close()

	cfg := pollConfig(srv.URL)
	cfg.PageLimit = 2

	sink := &recordingSink{}
	p, err := NewPoller(newTestLogger(), cfg, sink)
	require.NoError(t, err)

	p.watermark.Store(2)
	p.pass(context.Background())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, uint64(2), p.Watermark())
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	p, err := NewPoller(newTestLogger(), pollConfig(srv.URL), &recordingSink{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(40 * time.Millisecond)
	cancel()

	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}
