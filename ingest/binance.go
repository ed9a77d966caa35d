// Package ingest connects to exchange market-data feeds and normalises
// their output into codec.Trade values ready for the pipeline to encode.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/alephtx/perpfeed/codec"
)

// defaultStreamURL is Binance's USD-M futures combined-stream endpoint.
const defaultStreamURL = "wss://fstream.binance.com/stream"

// Binance streams Binance USD-M futures trade events and normalises them
// into codec.Trade values.
type Binance struct {
	Assets []string
	Trades chan<- codec.Trade

	// StreamURL overrides the combined-stream base URL (scheme://host/path,
	// with "?streams=..." appended); empty uses defaultStreamURL. Tests and
	// local development point this at a mock server.
	StreamURL string
}

// NewBinance returns a feed that publishes trades for assets onto trades.
// The caller owns and drains the channel.
func NewBinance(assets []string, trades chan<- codec.Trade) *Binance {
	return &Binance{Assets: assets, Trades: trades}
}

// Run connects and republishes trades until ctx is cancelled, reconnecting
// with a fixed backoff on any connection error.
func (b *Binance) Run(ctx context.Context) error {
	streams := make([]string, len(b.Assets))
	for i, a := range b.Assets {
		streams[i] = strings.ToLower(a) + "@trade"
	}
	base := b.StreamURL
	if base == "" {
		base = defaultStreamURL
	}
	url := base + "?streams=" + strings.Join(streams, "/")

	return runConnectionLoop(ctx, "ingest: binance", func(ctx context.Context) error {
		return b.connect(ctx, url)
	})
}

// runConnectionLoop retries connect with a fixed backoff until it returns a
// ctx-cancellation error, logging every disconnect in between.
func runConnectionLoop(ctx context.Context, name string, connect func(context.Context) error) error {
	for {
		if err := connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("%s disconnected (%v), reconnecting in 5s...", name, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
		}
	}
}

// binanceTradeEnvelope wraps one combined-stream trade event.
type binanceTradeEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// binanceTradeEvent is the futures trade stream's raw payload.
type binanceTradeEvent struct {
	EventTime    int64  `json:"T"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	IsBuyerMaker bool   `json:"m"`
}

func (b *Binance) connect(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	log.Println("ingest: binance connected")

	for {
		var envelope binanceTradeEnvelope
		if err := wsjson.Read(ctx, conn, &envelope); err != nil {
			return err
		}

		var raw binanceTradeEvent
		if err := json.Unmarshal(envelope.Data, &raw); err != nil {
			log.Printf("ingest: binance: dropping unparseable trade event: %v", err)
			continue
		}

		price, err := strconv.ParseFloat(raw.Price, 64)
		if err != nil {
			log.Printf("ingest: binance: dropping trade with bad price %q: %v", raw.Price, err)
			continue
		}
		quantity, err := strconv.ParseFloat(raw.Quantity, 64)
		if err != nil {
			log.Printf("ingest: binance: dropping trade with bad quantity %q: %v", raw.Quantity, err)
			continue
		}

		trade := codec.Trade{
			Symbol:       raw.Symbol,
			Timestamp:    uint64(raw.EventTime),
			Price:        price,
			Quantity:     quantity,
			IsBuyerMaker: raw.IsBuyerMaker,
		}

		select {
		case b.Trades <- trade:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
