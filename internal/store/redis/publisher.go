// Package redis publishes finished backtest runs to Redis streams so
// dashboards and downstream consumers can follow results.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"trend-backtest/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	equityStreamMaxLen = 50000
	tradeStreamMaxLen  = 10000
	defaultRunTTL      = 24 * time.Hour

	// DoneChannel receives the run ID of every published run.
	DoneChannel = "pub:bt:done"
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures int           // consecutive failures before the breaker opens (default 3)
	Cooldown    time.Duration // breaker cooldown (default 10s)
}

// Publisher writes equity points and trades to per-symbol streams.
type Publisher struct {
	client  *goredis.Client
	breaker *Breaker
}

// EquityStream is the stream key holding a symbol's equity points.
func EquityStream(symbol string) string { return "bt:equity:" + symbol }

// TradeStream is the stream key holding a symbol's trades.
func TradeStream(symbol string) string { return "bt:trades:" + symbol }

// RunKey is the key of a run's summary document.
func RunKey(runID string) string { return "bt:run:" + runID }

// NewPublisher creates a Publisher and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return newPublisher(client, cfg), nil
}

func newPublisher(client *goredis.Client, cfg PublisherConfig) *Publisher {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	b := NewBreaker(cfg.MaxFailures, cfg.Cooldown)
	b.OnStateChange = func(from, to BreakerState) {
		log.Printf("[redis] publish breaker %s -> %s", from, to)
	}
	return &Publisher{client: client, breaker: b}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// SaveRun publishes rec. It implements model.ResultSink.
func (p *Publisher) SaveRun(ctx context.Context, rec model.RunRecord) error {
	return p.breaker.Do(func() error { return p.publish(ctx, rec) })
}

func (p *Publisher) publish(ctx context.Context, rec model.RunRecord) error {
	summary, err := runSummary(rec)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()

	equityKey := EquityStream(rec.Symbol)
	for i := range rec.Equity {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: equityKey,
			MaxLen: equityStreamMaxLen,
			Approx: true,
			Values: equityValues(rec.RunID, rec.Equity[i]),
		})
	}

	tradeKey := TradeStream(rec.Symbol)
	for i := range rec.Trades {
		vals, err := tradeValues(rec.RunID, rec.Trades[i])
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: tradeKey,
			MaxLen: tradeStreamMaxLen,
			Approx: true,
			Values: vals,
		})
	}

	pipe.Set(ctx, RunKey(rec.RunID), summary, defaultRunTTL)
	pipe.Publish(ctx, DoneChannel, rec.RunID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish run %s: %w", rec.RunID, err)
	}
	log.Printf("[redis] published run %s (%s): %d equity points, %d trades",
		rec.RunID, rec.Symbol, len(rec.Equity), len(rec.Trades))
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func equityValues(runID string, pt model.EquityPoint) map[string]interface{} {
	return map[string]interface{}{
		"run_id": runID,
		"ts":     pt.TS.Unix(),
		"equity": strconv.FormatFloat(pt.Equity, 'f', -1, 64),
	}
}

func tradeValues(runID string, t model.Trade) (map[string]interface{}, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal trade: %w", err)
	}
	return map[string]interface{}{
		"run_id": runID,
		"data":   string(data),
	}, nil
}

type summaryDoc struct {
	RunID       string          `json:"run_id"`
	Symbol      string          `json:"symbol"`
	Bars        int             `json:"bars"`
	Trades      int             `json:"trades"`
	FinalEquity float64         `json:"final_equity"`
	Params      json.RawMessage `json:"params,omitempty"`
}

func runSummary(rec model.RunRecord) (string, error) {
	doc := summaryDoc{
		RunID:  rec.RunID,
		Symbol: rec.Symbol,
		Bars:   len(rec.Equity),
		Trades: len(rec.Trades),
	}
	if n := len(rec.Equity); n > 0 {
		doc.FinalEquity = rec.Equity[n-1].Equity
	}
	if len(rec.Params) > 0 {
		doc.Params = rec.Params
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal run summary: %w", err)
	}
	return string(b), nil
}
