package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultFiatURL   = "https://backend.raycast.com/api/v1/currencies"
	DefaultCryptoURL = "https://backend.raycast.com/api/v1/currencies/crypto"

	referenceCurrency = "USD"
	maxResponseBytes  = 4 << 20
)

// DefaultCryptoSymbols are requested from the crypto source.
var DefaultCryptoSymbols = []string{"BTC", "ETH", "SOL", "DOGE", "LTC", "XRP"}

var (
	// ErrSourceUnavailable wraps every failure of a single upstream source.
	ErrSourceUnavailable = errors.New("rate source unavailable")
	// ErrUnexpectedReference is returned when a source quotes against
	// something other than USD.
	ErrUnexpectedReference = errors.New("unexpected reference currency")
)

// Source fetches raw quotes from one upstream feed.
//
// The fiat source returns units per 1 USD; the crypto source returns the USD
// price of one unit. The cache knows which is which.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (map[string]float64, error)
}

// SourceConfig configures an HTTP rate source.
type SourceConfig struct {
	URL     string
	Client  *http.Client
	Breaker BreakerConfig
}

// BreakerConfig tunes the per-source circuit breaker. After Failures
// consecutive failures the source is skipped for OpenFor.
type BreakerConfig struct {
	Failures uint32
	OpenFor  time.Duration
}

type decodeFunc func(body []byte) (map[string]float64, error)

// HTTPSource is a Source backed by a JSON HTTP endpoint.
type HTTPSource struct {
	name    string
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	decode  decodeFunc
}

func newHTTPSource(name string, cfg SourceConfig, decode decodeFunc) *HTTPSource {
	if cfg.Client == nil {
		cfg.Client = NewHTTPClient(0)
	}
	if cfg.Breaker.Failures == 0 {
		cfg.Breaker.Failures = 3
	}
	if cfg.Breaker.OpenFor <= 0 {
		cfg.Breaker.OpenFor = 5 * time.Minute
	}
	threshold := cfg.Breaker.Failures
	return &HTTPSource{
		name:   name,
		url:    cfg.URL,
		client: cfg.Client,
		decode: decode,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.Breaker.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// A caller giving up says nothing about the upstream.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// NewFiatSource reads `{success, source, quotes{"USDEUR": 0.92}}`.
func NewFiatSource(cfg SourceConfig) *HTTPSource {
	if cfg.URL == "" {
		cfg.URL = DefaultFiatURL
	}
	return newHTTPSource("fiat", cfg, decodeFiat)
}

// NewCryptoSource reads `{success, target, rates{"BTC": 97000}}` for the
// given symbols.
func NewCryptoSource(cfg SourceConfig, symbols []string) *HTTPSource {
	if cfg.URL == "" {
		cfg.URL = DefaultCryptoURL
	}
	if len(symbols) == 0 {
		symbols = DefaultCryptoSymbols
	}
	if !strings.Contains(cfg.URL, "?") {
		cfg.URL += "?symbols=" + strings.Join(symbols, ",")
	}
	return newHTTPSource("crypto", cfg, decodeCrypto)
}

func (s *HTTPSource) Name() string { return s.name }

// Fetch performs one request through the circuit breaker.
func (s *HTTPSource) Fetch(ctx context.Context) (map[string]float64, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.name, err)
	}
	return out.(map[string]float64), nil
}

func (s *HTTPSource) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return s.decode(body)
}

type fiatResponse struct {
	Success bool               `json:"success"`
	Source  string             `json:"source"`
	Quotes  map[string]float64 `json:"quotes"`
}

type cryptoResponse struct {
	Success bool               `json:"success"`
	Target  string             `json:"target"`
	Rates   map[string]float64 `json:"rates"`
}

func decodeFiat(body []byte) (map[string]float64, error) {
	var r fiatResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode fiat response: %w", err)
	}
	if !r.Success {
		return nil, errors.New("fiat response not successful")
	}
	if r.Source != referenceCurrency {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedReference, r.Source)
	}
	out := make(map[string]float64, len(r.Quotes))
	for key, v := range r.Quotes {
		code, ok := strings.CutPrefix(key, referenceCurrency)
		if !ok || code == "" {
			continue
		}
		out[code] = v
	}
	return out, nil
}

func decodeCrypto(body []byte) (map[string]float64, error) {
	var r cryptoResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode crypto response: %w", err)
	}
	if !r.Success {
		return nil, errors.New("crypto response not successful")
	}
	if r.Target != referenceCurrency {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedReference, r.Target)
	}
	if r.Rates == nil {
		return map[string]float64{}, nil
	}
	return r.Rates, nil
}
