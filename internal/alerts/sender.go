package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"
	natsclient "whalewatch/internal/pubsub/nats"

	"gitlab.com/nevasik7/alerting/logger"
)

// Sender delivers one formatted alert to the operator channel
type Sender interface {
	Name() string
	Send(ctx context.Context, rec *domain.AlertRecord) error
}

// NewSender build sender by cfg.Sender(nats|webhook|log); empty -> log
func NewSender(log logger.Logger, cfg *config.AlertsConfig, nc *natsclient.Client) (Sender, error) {
	if cfg == nil {
		return nil, errors.New("alerts config is required")
	}

	switch cfg.Sender {
	case "", "log":
		return NewLogSender(log), nil
	case "nats":
		if nc == nil {
			return nil, errors.New("nats client is required for the nats alert sender")
		}
		return NewNATSSender(log, nc, cfg.Subject), nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, errors.New("webhook_url is required for the webhook alert sender")
		}
		return NewWebhookSender(log, cfg), nil
	default:
		return nil, fmt.Errorf("unknown alert sender %q", cfg.Sender)
	}
}

// Format renders the single line operator message
func Format(rec *domain.AlertRecord) string {
	name := rec.TokenSymbol
	if name == "" {
		name = rec.Token.ID()
	}

	return fmt.Sprintf("🐳 WHALE ALERT %s | %s | buyers=%d volume=$%.0f trigger=$%.0f | alpha=%d safety=%d",
		name, rec.Reason, rec.UniqueBuyers, rec.TotalVolumeUSD, rec.TriggerUSD, rec.AlphaScore, rec.SafetyScore)
}

// LogSender is the dev fallback, alert goes to the app log only
type LogSender struct {
	log logger.Logger
}

func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, rec *domain.AlertRecord) error {
	s.log.Infof("%s", rec.Message)
	return nil
}

type NATSSender struct {
	log     logger.Logger
	client  *natsclient.Client
	subject string
}

func NewNATSSender(log logger.Logger, client *natsclient.Client, subject string) *NATSSender {
	if subject == "" {
		subject = "whalewatch.alerts"
	}

	return &NATSSender{
		log:     log,
		client:  client,
		subject: subject,
	}
}

func (s *NATSSender) Name() string { return "nats" }

func (s *NATSSender) Send(_ context.Context, rec *domain.AlertRecord) error {
	if err := s.client.Publish(s.subject, rec); err != nil {
		return fmt.Errorf("nats alert publish error=%w", err)
	}

	return nil
}

type WebhookSender struct {
	log    logger.Logger
	client *http.Client
	url    string
}

func NewWebhookSender(log logger.Logger, cfg *config.AlertsConfig) *WebhookSender {
	timeout := cfg.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookSender{
		log:    log,
		client: &http.Client{Timeout: timeout},
		url:    cfg.WebhookURL,
	}
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, rec *domain.AlertRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal alert error=%w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request error=%w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request error=%w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook replied status=%d", resp.StatusCode)
	}

	return nil
}
