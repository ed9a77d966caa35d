package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// AvgPriceQty is the average trade price and quantity over a recent sample,
// used to seed a codec header's reference row for one asset.
type AvgPriceQty struct {
	Price    float64
	Quantity float64
}

// ReferenceClient fetches recent-trade statistics from Binance's REST API.
type ReferenceClient struct {
	http *http.Client
	base *url.URL
}

// defaultRESTURL is Binance's USD-M futures REST API base.
const defaultRESTURL = "https://fapi.binance.com"

// NewReferenceClient returns a client pointed at Binance's USD-M futures
// REST API. An empty restURL uses defaultRESTURL.
func NewReferenceClient(restURL string) *ReferenceClient {
	if restURL == "" {
		restURL = defaultRESTURL
	}
	base, _ := url.Parse(restURL)
	return &ReferenceClient{
		http: &http.Client{Timeout: 10 * time.Second},
		base: base,
	}
}

type rawTrade struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

// AvgStats fetches recent trades for symbol and returns the mean price and
// quantity of the entries that parse. An empty trade list (or one with no
// parseable entry) yields the zero value and a nil error; a failed request,
// a non-200 status or an undecodable body returns an error, which
// AvgStatsBatch turns into the zero value for that one symbol rather than
// aborting the whole batch.
func (c *ReferenceClient) AvgStats(ctx context.Context, symbol string) (AvgPriceQty, error) {
	u := *c.base
	u.Path = "/fapi/v1/trades"
	u.RawQuery = url.Values{"symbol": {symbol}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return AvgPriceQty{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return AvgPriceQty{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return AvgPriceQty{}, fmt.Errorf("ingest: reference: %s: unexpected status %s", symbol, resp.Status)
	}

	var trades []rawTrade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return AvgPriceQty{}, fmt.Errorf("ingest: reference: %s: decode: %w", symbol, err)
	}
	if len(trades) == 0 {
		return AvgPriceQty{}, nil
	}

	var sumPrice, sumQty float64
	parsed := 0
	for _, t := range trades {
		p, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			continue
		}
		q, err := strconv.ParseFloat(t.Qty, 64)
		if err != nil {
			continue
		}
		sumPrice += p
		sumQty += q
		parsed++
	}
	if parsed == 0 {
		return AvgPriceQty{}, nil
	}
	n := float64(parsed)
	return AvgPriceQty{Price: sumPrice / n, Quantity: sumQty / n}, nil
}

// AvgStatsBatch computes AvgStats for every symbol concurrently, bounded by
// maxConcurrency in flight at once (a non-positive value is clamped to 1, so
// callers can't deadlock this by passing 0). The result slice is in the same
// order as symbols; a symbol whose request fails gets the zero value.
func (c *ReferenceClient) AvgStatsBatch(ctx context.Context, symbols []string, maxConcurrency int) []AvgPriceQty {
	results := make([]AvgPriceQty, len(symbols))
	sem := make(chan struct{}, max(maxConcurrency, 1))
	var wg sync.WaitGroup

	for i, symbol := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			stats, err := c.AvgStats(ctx, symbol)
			if err != nil {
				return
			}
			results[i] = stats
		}(i, symbol)
	}
	wg.Wait()
	return results
}
