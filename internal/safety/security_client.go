package safety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"

	"gitlab.com/nevasik7/alerting/logger"
)

// Thin client for the token security provider (honeypot simulation,
// holder distribution, LP locks, socials). One base URL, one path per
// probe, all responses are flat JSON.
type SecurityClient struct {
	log     logger.Logger
	client  *http.Client
	baseURL string
}

func NewSecurityClient(log logger.Logger, cfg *config.ProvidersConfig) (*SecurityClient, error) {
	if cfg == nil {
		return nil, errors.New("providers config is required")
	}
	if cfg.Security.BaseURL == "" {
		return nil, errors.New("security provider base_url is required")
	}

	timeout := cfg.Security.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	return &SecurityClient{
		log:     log,
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.Security.BaseURL,
	}, nil
}

type HoneypotResult struct {
	IsHoneypot bool    `json:"is_honeypot"`
	CanSell    bool    `json:"can_sell"`
	BuyTaxPct  float64 `json:"buy_tax_pct"`
	SellTaxPct float64 `json:"sell_tax_pct"`
}

type HoldersResult struct {
	HolderCount int     `json:"holder_count"`
	Top10Pct    float64 `json:"top10_pct"`
	CreatorPct  float64 `json:"creator_pct"`
}

type LPLockResult struct {
	LockedPct float64 `json:"locked_pct"`
	Burned    bool    `json:"burned"`
}

type SocialResult struct {
	HasWebsite   bool `json:"has_website"`
	HasTwitter   bool `json:"has_twitter"`
	HasTelegram  bool `json:"has_telegram"`
	MentionScore int  `json:"mention_score"` // 0..100
}

func (c *SecurityClient) Honeypot(ctx context.Context, key domain.TokenKey) (*HoneypotResult, error) {
	var out HoneypotResult
	if err := c.get(ctx, "honeypot", key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SecurityClient) Holders(ctx context.Context, key domain.TokenKey) (*HoldersResult, error) {
	var out HoldersResult
	if err := c.get(ctx, "holders", key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SecurityClient) LPLock(ctx context.Context, key domain.TokenKey) (*LPLockResult, error) {
	var out LPLockResult
	if err := c.get(ctx, "lplock", key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SecurityClient) Social(ctx context.Context, key domain.TokenKey) (*SocialResult, error) {
	var out SocialResult
	if err := c.get(ctx, "social", key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SecurityClient) get(ctx context.Context, probe string, key domain.TokenKey, out any) error {
	url := fmt.Sprintf("%s/%s/%d/%s", c.baseURL, probe, key.ChainID, key.TokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", probe, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", probe, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s probe status=%d body=%s", probe, resp.StatusCode, string(body))
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", probe, err)
	}
	return nil
}
