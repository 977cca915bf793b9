package clickhouse

import (
	"context"
	"errors"
	"sync"
	"time"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
)

type AlertRow struct {
	AlertTime      time.Time
	ChainID        uint32
	TokenAddress   string
	TokenSymbol    string
	Reason         string
	UniqueBuyers   uint32
	TotalVolumeUSD string // Decimal(20,6) — send string
	TriggerUSD     string // Decimal(20,6) — send string
	AlphaScore     uint8
	SafetyScore    uint8
	Message        string
	SchemaVersion  uint16
}

// RowFromAlert converts the queue record to the archive row
func RowFromAlert(rec *domain.AlertRecord) AlertRow {
	return AlertRow{
		AlertTime:      rec.EnqueuedAt,
		ChainID:        rec.Token.ChainID,
		TokenAddress:   rec.Token.TokenAddress,
		TokenSymbol:    rec.TokenSymbol,
		Reason:         string(rec.Reason),
		UniqueBuyers:   uint32(rec.UniqueBuyers),
		TotalVolumeUSD: usdString(rec.TotalVolumeUSD),
		TriggerUSD:     usdString(rec.TriggerUSD),
		AlphaScore:     clampByte(rec.AlphaScore),
		SafetyScore:    clampByte(rec.SafetyScore),
		Message:        rec.Message,
		SchemaVersion:  1,
	}
}

func usdString(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(6)
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return uint8(v)
}

// Alerter is the log-and-alert surface the writer reports insert failures
// through; satisfied by *alerting.Alerting and by log-only adapters.
type Alerter interface {
	ErrorfLogAndAlert(format string, args ...interface{})
}

type Writer struct {
	alert Alerter

	conn ch.Conn
	cfg  config.ClickHouseConfig

	inCh      chan AlertRow
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWriter(alert Alerter, conn ch.Conn, cfg config.ClickHouseConfig) *Writer {
	// sane defaults
	if cfg.Writer.BatchMaxRows <= 0 {
		cfg.Writer.BatchMaxRows = 1000
	}
	if cfg.Writer.BatchMaxInterval <= 0 {
		cfg.Writer.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.Writer.MaxRetries < 0 {
		cfg.Writer.MaxRetries = 0
	}
	if cfg.Writer.RetryBackoff <= 0 {
		cfg.Writer.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		alert:    alert,
		conn:     conn,
		cfg:      cfg,
		inCh:     make(chan AlertRow, 4096),
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w
}

func (w *Writer) Enqueue(row AlertRow) error {
	select {
	case <-w.closedCh:
		return errors.New("clickhouse writer closed")
	default:
	}

	select {
	case w.inCh <- row:
		return nil
	case <-w.closedCh:
		return errors.New("clickhouse writer closed")
	}
}

func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
		close(w.inCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]AlertRow, 0, w.cfg.Writer.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.Writer.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			w.alert.ErrorfLogAndAlert("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row, ok := <-w.inCh:
			if !ok {
				flush()
				return
			}

			batch = append(batch, row)
			if len(batch) >= w.cfg.Writer.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (w *Writer) insertBatch(ctx context.Context, rows []AlertRow) error {
	if len(rows) == 0 {
		return nil
	}

	// repeat with exponential delay
	backoff := w.cfg.Writer.RetryBackoff

	var lastErr error

	for attempt := 0; attempt <= w.cfg.Writer.MaxRetries; attempt++ {
		batch, err := w.conn.PrepareBatch(ctx, `
			INSERT INTO whale_alerts (
				alert_time,
				chain_id,
				token_address,
				token_symbol,
				reason,
				unique_buyers,
				total_volume_usd,
				trigger_usd,
				alpha_score,
				safety_score,
				message,
				schema_version
			)
		`)
		if err != nil {
			lastErr = err
			goto retry
		}

		for i := range rows {
			r := &rows[i]

			if err = batch.Append(
				r.AlertTime,
				r.ChainID,
				r.TokenAddress,
				r.TokenSymbol,
				r.Reason,
				r.UniqueBuyers,
				r.TotalVolumeUSD,
				r.TriggerUSD,
				r.AlphaScore,
				r.SafetyScore,
				r.Message,
				r.SchemaVersion,
			); err != nil {
				lastErr = err
				_ = batch.Abort()
				goto retry
			}
		}

		if err = batch.Send(); err != nil {
			lastErr = err
			goto retry
		}
		// success
		return nil

	retry:
		if attempt == w.cfg.Writer.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}
