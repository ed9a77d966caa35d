// Package pipeline wires an ingest feed to a sink: it seeds a codec header
// from reference prices, writes the START handshake and header once, then
// encodes every incoming trade and hands the frame to the sink.
package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/alephtx/perpfeed/codec"
	"github.com/alephtx/perpfeed/ingest"
	"github.com/alephtx/perpfeed/shm"
)

// startMarker is the literal handshake payload every stream begins with,
// before the header and the first trade frame.
var startMarker = []byte("START")

// Sink receives framed bytes: the START marker, the header, and then one
// call per encoded trade. A ring push and a TCP broadcast are both valid
// sinks.
type Sink func([]byte) error

// referenceFetcher is the subset of *ingest.ReferenceClient the pipeline
// needs, narrowed to an interface so tests can stub it out.
type referenceFetcher interface {
	AvgStatsBatch(ctx context.Context, symbols []string, maxConcurrency int) []ingest.AvgPriceQty
}

// Pipeline encodes trades from one ingest feed and forwards them to a sink.
type Pipeline struct {
	Assets         []string
	Reference      referenceFetcher
	Snapshot       *shm.SnapshotTable // optional; nil disables snapshot publishing
	MaxConcurrency int
}

// New returns a Pipeline for assets, fetching reference prices through ref.
func New(assets []string, ref *ingest.ReferenceClient) *Pipeline {
	return &Pipeline{Assets: assets, Reference: ref, MaxConcurrency: len(assets)}
}

// Initialize fetches reference stats for every asset and returns a codec
// primed with a matching header, plus the serialized header bytes. Callers
// that need the header ahead of the streaming loop — a TCP server replaying
// it to late-joining clients — call this directly instead of Run.
func (p *Pipeline) Initialize(ctx context.Context) (*codec.Codec, []byte, error) {
	stats := p.Reference.AvgStatsBatch(ctx, p.Assets, max(p.MaxConcurrency, 1))
	prices := make([]float64, len(stats))
	quantities := make([]float64, len(stats))
	for i, s := range stats {
		prices[i] = s.Price
		quantities[i] = s.Quantity
	}

	enc, err := codec.New().WithAssets(p.Assets)
	if err != nil {
		return nil, nil, err
	}
	referenceTimestamp := uint64(time.Now().UnixMilli())
	header := enc.WriteHeader(nil, referenceTimestamp, prices, quantities)
	log.Printf("pipeline: encoder initialized for %d assets", len(p.Assets))
	return enc, header, nil
}

// Run calls Initialize, then streams: writes the handshake and header to
// sink, then encodes every trade received on trades until ctx is cancelled
// or the channel closes.
func (p *Pipeline) Run(ctx context.Context, trades <-chan codec.Trade, sink Sink) error {
	enc, header, err := p.Initialize(ctx)
	if err != nil {
		return err
	}
	return p.RunWithEncoder(ctx, enc, header, trades, sink)
}

// RunWithEncoder writes the handshake and header to sink, then encodes
// every trade received on trades until ctx is cancelled or the channel
// closes. Encode errors are logged and the offending trade is dropped; the
// codec's per-asset state is unaffected since Encode never advances state
// on failure. A shm.ErrQueueFull from sink is transient backpressure — it's
// logged and the frame dropped rather than aborting the run; any other sink
// error is treated as fatal and returned. Use this instead of Run when the
// header must be known before streaming starts (see Initialize).
func (p *Pipeline) RunWithEncoder(ctx context.Context, enc *codec.Codec, header []byte, trades <-chan codec.Trade, sink Sink) error {
	if err := sink(startMarker); err != nil {
		return err
	}
	if err := sink(header); err != nil {
		return err
	}
	log.Println("pipeline: handshake and header sent")

	assetIndex := make(map[string]int, len(p.Assets))
	for i, a := range p.Assets {
		assetIndex[a] = i
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case trade, ok := <-trades:
			if !ok {
				return nil
			}
			frame, err := enc.Encode(nil, trade)
			if err != nil {
				log.Printf("pipeline: encode error for %s: %v", trade.Symbol, err)
				continue
			}
			if err := sink(frame); err != nil {
				if errors.Is(err, shm.ErrQueueFull) {
					log.Printf("pipeline: ring full, dropping frame for %s", trade.Symbol)
					continue
				}
				return err
			}
			if p.Snapshot != nil {
				if idx, ok := assetIndex[trade.Symbol]; ok {
					p.Snapshot.Write(idx, trade.Timestamp, trade.Price, trade.Quantity, trade.IsBuyerMaker)
				}
			}
		}
	}
}
