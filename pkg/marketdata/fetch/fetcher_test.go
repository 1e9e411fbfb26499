package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketcal/pkg/marketdata"
)

type pricePayload struct {
	Price float64 `json:"price"`
}

func TestGetJSONSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"price":43250.5}`))
	}))
	defer server.Close()

	fetcher := New()
	var out pricePayload
	err := fetcher.GetJSON(context.Background(), server.URL+"/ticker", nil, &out)
	require.NoError(t, err)
	require.InDelta(t, 43250.5, out.Price, 1e-9)
}

func TestGetJSONPassesHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Apikey secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("Authorization", "Apikey secret")
	require.NoError(t, New().GetJSON(context.Background(), server.URL, header, nil))
}

func TestGetJSONServesFromCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"price":100}`))
	}))
	defer server.Close()

	fetcher := New(WithCache(NewCache(time.Minute)))
	var out pricePayload
	require.NoError(t, fetcher.GetJSON(context.Background(), server.URL+"/t?symbol=BTC", nil, &out))
	require.NoError(t, fetcher.GetJSON(context.Background(), server.URL+"/t?symbol=BTC", nil, &out))
	require.Equal(t, int32(1), hits.Load())

	// A different query is a different request identity.
	require.NoError(t, fetcher.GetJSON(context.Background(), server.URL+"/t?symbol=ETH", nil, &out))
	require.Equal(t, int32(2), hits.Load())
}

func TestGetJSONRateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	fetcher := New(WithLimiter(NewLimiter(1, time.Minute)))
	require.NoError(t, fetcher.GetJSON(context.Background(), server.URL, nil, nil))

	err := fetcher.GetJSON(context.Background(), server.URL, nil, nil)
	require.ErrorIs(t, err, marketdata.ErrRateLimited)
	require.Equal(t, int32(1), hits.Load(), "a throttled request must not reach the network")
}

func TestGetJSONStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	err := New().GetJSON(context.Background(), server.URL, nil, nil)
	var statusErr *marketdata.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.Status)
	require.Contains(t, statusErr.Body, "upstream exploded")
}

func TestGetJSONMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price":`))
	}))
	defer server.Close()

	var out pricePayload
	err := New().GetJSON(context.Background(), server.URL, nil, &out)
	require.ErrorIs(t, err, marketdata.ErrMalformedResponse)
}

func TestGetJSONDoesNotCacheFailures(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"price":7}`))
	}))
	defer server.Close()

	fetcher := New(WithCache(NewCache(time.Minute)))
	require.Error(t, fetcher.GetJSON(context.Background(), server.URL, nil, nil))

	fail.Store(false)
	var out pricePayload
	require.NoError(t, fetcher.GetJSON(context.Background(), server.URL, nil, &out))
	require.InDelta(t, 7, out.Price, 1e-9)
}

func TestGetJSONTimeout(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	fetcher := New(WithTimeout(20 * time.Millisecond))
	err := fetcher.GetJSON(context.Background(), server.URL, nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetJSONContextCancelled(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := New().GetJSON(ctx, server.URL, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetJSONFailureInjection(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	fetcher := New(WithFailureInjector(alwaysFail{}))
	err := fetcher.GetJSON(context.Background(), server.URL, nil, nil)
	require.Error(t, err)
	require.Zero(t, hits.Load())
}

type alwaysFail struct{}

func (alwaysFail) Fail(url string) error { return errors.New("injected: " + url) }

func TestRandomInjectorRate(t *testing.T) {
	never := NewRandomInjector(0, 1)
	always := NewRandomInjector(1, 1)
	for i := 0; i < 50; i++ {
		require.NoError(t, never.Fail("u"))
		require.Error(t, always.Fail("u"))
	}
}

func TestNormalizeKeyCanonicalOrder(t *testing.T) {
	a := normalizeKey("https://x.test/t?b=2&a=1")
	b := normalizeKey("https://x.test/t?a=1&b=2")
	require.Equal(t, a, b)
	require.NotEqual(t, a, normalizeKey("https://x.test/t?a=1"))
}
