package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveJSON(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFiatSource_Fetch(t *testing.T) {
	srv, _ := serveJSON(t, http.StatusOK,
		`{"success":true,"source":"USD","quotes":{"USDEUR":0.92,"USDTRY":34.5,"EURUSD":1.08}}`)

	src := NewFiatSource(SourceConfig{URL: srv.URL, Client: srv.Client()})
	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EUR": 0.92, "TRY": 34.5}, quotes)
	assert.Equal(t, "fiat", src.Name())
}

func TestFiatSource_WrongReference(t *testing.T) {
	srv, _ := serveJSON(t, http.StatusOK, `{"success":true,"source":"EUR","quotes":{"EURUSD":1.08}}`)

	_, err := NewFiatSource(SourceConfig{URL: srv.URL}).Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, ErrUnexpectedReference)
}

func TestFiatSource_NotSuccessful(t *testing.T) {
	srv, _ := serveJSON(t, http.StatusOK, `{"success":false,"source":"USD","quotes":{}}`)
	_, err := NewFiatSource(SourceConfig{URL: srv.URL}).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestFiatSource_SchemaMismatch(t *testing.T) {
	srv, _ := serveJSON(t, http.StatusOK, `{"success":"yes"}`)
	_, err := NewFiatSource(SourceConfig{URL: srv.URL}).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestCryptoSource_Fetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("symbols")
		_, _ = w.Write([]byte(`{"success":true,"target":"USD","rates":{"BTC":50000,"ETH":2500}}`))
	}))
	defer srv.Close()

	src := NewCryptoSource(SourceConfig{URL: srv.URL}, []string{"BTC", "ETH"})
	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BTC,ETH", gotQuery)
	assert.Equal(t, map[string]float64{"BTC": 50000, "ETH": 2500}, quotes)
}

func TestCryptoSource_DefaultSymbols(t *testing.T) {
	src := NewCryptoSource(SourceConfig{}, nil)
	assert.Equal(t, DefaultCryptoURL+"?symbols=BTC,ETH,SOL,DOGE,LTC,XRP", src.url)
}

func TestHTTPSource_ServerError(t *testing.T) {
	srv, _ := serveJSON(t, http.StatusBadGateway, `oops`)
	_, err := NewCryptoSource(SourceConfig{URL: srv.URL}, nil).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestHTTPSource_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv, hits := serveJSON(t, http.StatusInternalServerError, `down`)

	src := NewFiatSource(SourceConfig{
		URL:     srv.URL,
		Breaker: BreakerConfig{Failures: 2, OpenFor: time.Hour},
	})
	for i := 0; i < 2; i++ {
		_, err := src.Fetch(context.Background())
		require.Error(t, err)
	}

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the server")
}

func TestHTTPSource_CancelledCallerDoesNotTripBreaker(t *testing.T) {
	srv, _ := serveJSON(t, http.StatusOK, `{"success":true,"source":"USD","quotes":{"USDEUR":0.92}}`)

	src := NewFiatSource(SourceConfig{
		URL:     srv.URL,
		Breaker: BreakerConfig{Failures: 1, OpenFor: time.Hour},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_, err := src.Fetch(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	}

	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EUR": 0.92}, quotes)
}
