package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
	"whalewatch/internal/config"

	"gitlab.com/nevasik7/alerting/logger"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPageLimit    = 200
	defaultPollTimeout  = 10 * time.Second
)

// Poll source walking a seq cursor over HTTP. Every pass asks for
// events strictly newer than the watermark and advances it to the
// highest seq seen. A failed pass leaves the watermark alone, so the
// next pass retries the same range. Replays and stale pages are cut
// off by the seq guard even when upstream ignores the since param.
type Poller struct {
	log       logger.Logger
	client    *http.Client
	name      string
	baseURL   string
	interval  time.Duration
	pageLimit int
	sink      Sink

	watermark atomic.Uint64
}

func NewPoller(log logger.Logger, cfg config.PollSourceConfig, sink Sink) (*Poller, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("poll source base url is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}

	// sane defaults
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	name := cfg.Name
	if name == "" {
		name = cfg.BaseURL
	}

	return &Poller{
		log:       log,
		client:    &http.Client{Timeout: timeout},
		name:      name,
		baseURL:   cfg.BaseURL,
		interval:  interval,
		pageLimit: pageLimit,
		sink:      sink,
	}, nil
}

func (p *Poller) Name() string {
	return "poll:" + p.name
}

// Watermark is the highest seq already handed to the sink
func (p *Poller) Watermark() uint64 {
	return p.watermark.Load()
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.log.Infof("Polling %s every %s, page=%d", p.name, p.interval, p.pageLimit)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			p.pass(ctx)
		}
	}
}

// one tick: drain full pages until a short page or no forward progress
func (p *Poller) pass(ctx context.Context) {
	for {
		n, err := p.poll(ctx)
		if err != nil {
			p.log.Warnf("Poll pass failed for %s, watermark=%d stays: %v", p.name, p.Watermark(), err)
			return
		}
		if n < p.pageLimit {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (p *Poller) poll(ctx context.Context) (int, error) {
	since := p.watermark.Load()
	url := fmt.Sprintf("%s/events?since=%d&limit=%d", p.baseURL, since, p.pageLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build poll request error=%w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("poll request error=%w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("poll source replied status=%d", resp.StatusCode)
	}

	var batch []json.RawMessage
	if err = json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return 0, fmt.Errorf("decode poll batch error=%w", err)
	}

	forwarded := 0
	high := since
	for _, raw := range batch {
		// peek the cursor without touching the payload itself
		var cur struct {
			Seq uint64 `json:"seq"`
		}
		if err = json.Unmarshal(raw, &cur); err != nil || cur.Seq <= since {
			continue
		}

		p.sink.HandleRaw(ctx, raw)
		forwarded++
		if cur.Seq > high {
			high = cur.Seq
		}
	}

	if high > since {
		p.watermark.Store(high)
	} else if len(batch) == p.pageLimit {
		// full page with nothing new means upstream is stuck, stop draining
		return 0, nil
	}

	if forwarded > 0 {
		p.log.Debugf("Forwarded %d events from %s, watermark=%d", forwarded, p.name, high)
	}
	return len(batch), nil
}

var _ Source = (*Poller)(nil)
