package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex/domain/matching"
	"apex/domain/orderbook"
)

func TestSyncerCountsTrades(t *testing.T) {
	m := New()
	var seen int
	e := matching.New(matching.WithSyncer(m.Syncer(orderbook.SyncerFunc(func(orderbook.Event) { seen++ }))))
	m.WatchBook(e.Book())

	_, err := e.CreateOrder(orderbook.NewLimit(uuid.New(), orderbook.Sell, 100, 5))
	require.NoError(t, err)
	_, err = e.CreateOrder(orderbook.NewLimit(uuid.New(), orderbook.Sell, 101, 5))
	require.NoError(t, err)
	_, err = e.CreateOrder(orderbook.NewMarket(uuid.New(), orderbook.Buy, 7, orderbook.ImmediateOrCancel))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.trades))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.volume))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("inserted")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.events.WithLabelValues("filled")))
	assert.Equal(t, 6, seen)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `apex_book_levels{side="SELL"} 1`), body)
	assert.True(t, strings.Contains(body, "apex_book_live_orders 1"))
}

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveOutcome(orderbook.Filled)
	m.ObserveError("cancel", "not_found")
	m.ObserveLatency("create", time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(orderbook.Filled.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("cancel", "not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

func TestGauge(t *testing.T) {
	m := New()
	var n float64
	m.Gauge("journal_failures", "test", func() float64 { return n })
	n = 3

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "apex_journal_failures 3")
}
