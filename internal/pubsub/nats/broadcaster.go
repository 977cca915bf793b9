package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"
)

type Client struct {
	nc  *nats.Conn
	log logger.Logger
}

func Connect(cfg *config.NATSConfig, log logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("whalewatch"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // endless reconnected
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Infof("Connected to NATS successfully, url=%s", cfg.URL)

	return &Client{
		nc:  nc,
		log: log,
	}, nil
}

// Publish marshal v to JSON and push to subject
func (c *Client) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s, error=%w", subject, err)
	}

	if err = c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s, error=%w", subject, err)
	}

	return nil
}

func (c *Client) Subscribe(subject string, h nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, h)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s, error=%w", subject, err)
	}

	return sub, nil
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}

	// check not close this conn
	if c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Errorf("Failed to drain connection to NATS, error=%v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Infof("NATS connection closed gracefully")
	return nil
}

// Broadcaster pushes periodic status snapshots to a NATS subject
type Broadcaster struct {
	log      logger.Logger
	client   *Client
	subject  string
	interval time.Duration
	snapshot func() *domain.StatusSnapshot
}

func NewBroadcaster(log logger.Logger, client *Client, cfg *config.NATSConfig, snapshot func() *domain.StatusSnapshot) *Broadcaster {
	subject := cfg.StatusSubject
	if subject == "" {
		subject = "whalewatch.status"
	}

	interval := cfg.StatusInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Broadcaster{
		log:      log,
		client:   client,
		subject:  subject,
		interval: interval,
		snapshot: snapshot,
	}
}

// Run blocks until ctx cancel
func (b *Broadcaster) Run(ctx context.Context) {
	t := time.NewTicker(b.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !b.client.Ready() {
				b.log.Warnf("NATS not ready, skip status broadcast")
				continue
			}
			if err := b.client.Publish(b.subject, b.snapshot()); err != nil {
				b.log.Errorf("Failed to broadcast status, error=%v", err)
			}
		}
	}
}
