package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripfare/pkg/logger"
	"tripfare/pkg/pricing"
)

// fetchStep scripts one FetchResults reply. The last step of a lineage
// script repeats if the session keeps polling.
type fetchStep struct {
	page *pricing.ResultsPage
	err  error
}

// fakeClient plays back per-lineage scripts: scripts[0] serves the first
// StartSearch, scripts[1] the search issued by a restart, and so on.
type fakeClient struct {
	mu       sync.Mutex
	startErr error
	scripts  [][]fetchStep

	starts  int
	fetches int
}

func (f *fakeClient) StartSearch(ctx context.Context, req pricing.SearchRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts++
	f.fetches = 0
	return fmt.Sprintf("token-%d", f.starts), nil
}

func (f *fakeClient) FetchResults(ctx context.Context, searchID string) (*pricing.ResultsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	script := f.scripts[min(f.starts-1, len(f.scripts)-1)]
	step := script[min(f.fetches, len(script)-1)]
	f.fetches++

	if step.err != nil {
		return nil, step.err
	}
	// Copy so the session cannot alias the script.
	page := *step.page
	return &page, nil
}

func (f *fakeClient) counts() (starts, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.fetches
}

func pricedTrip(id string, price float64) pricing.Trip {
	return pricing.Trip{
		ID:        id,
		TripPrice: pricing.FlexPrice(price),
		Currency:  "USD",
		Segment: pricing.Segment{
			Airline:      "Garuda Indonesia",
			FlightNumber: "GA" + id,
			Origin:       "CGK",
			Destination:  "DPS",
		},
	}
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		PollInterval:    5 * time.Millisecond,
		MaxPollAttempts: 30,
		PageSize:        20,
	}
}

func startTestSession(t *testing.T, client *fakeClient, config SessionConfig) *Session {
	t.Helper()

	criteria := Criteria{Origin: "CGK", Destination: "DPS", OutboundDate: "2026-09-10", Adults: 1}
	sess := newSession("sess-1", criteria, client, config, logger.NewZeroLog("test"))
	sess.start(context.Background())
	t.Cleanup(sess.Cancel)
	return sess
}

func waitDone(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func TestSession_CompletesOnExplicitSignal(t *testing.T) {
	client := &fakeClient{scripts: [][]fetchStep{{
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("A", 500)}, Complete: false}},
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("B", 700)}, Complete: true}},
	}}}

	sess := startTestSession(t, client, testSessionConfig())
	waitDone(t, sess)

	assert.Equal(t, StateCompleted, sess.State())
	assert.Equal(t, 2, sess.MasterSize())
	assert.Equal(t, 0, sess.Restarts())

	starts, fetches := client.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 2, fetches, "polling stops the moment completion is reported")

	snap := sess.Snapshot()
	assert.False(t, snap.IsSearching)
	assert.False(t, snap.IsInitialLoad)
	assert.Len(t, snap.Results, 2)
}

func TestSession_FirstFetchBeforeReady(t *testing.T) {
	client := &fakeClient{scripts: [][]fetchStep{{
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("A", 500)}, Complete: false}},
		{page: &pricing.ResultsPage{Complete: false}},
	}}}

	sess := startTestSession(t, client, testSessionConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.WaitReady(ctx))

	snap := sess.Snapshot()
	assert.False(t, snap.IsInitialLoad, "the immediate post-initiation fetch lands before ready")
	assert.True(t, snap.IsSearching)
	assert.Len(t, snap.Results, 1)
}

func TestSession_BoundedAttempts(t *testing.T) {
	client := &fakeClient{scripts: [][]fetchStep{{
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("A", 500)}, Complete: false}},
	}}}

	config := testSessionConfig()
	config.MaxPollAttempts = 3

	sess := startTestSession(t, client, config)
	waitDone(t, sess)

	assert.Equal(t, StateCompleted, sess.State(), "attempt exhaustion forces completion")

	_, fetches := client.counts()
	assert.Equal(t, 4, fetches, "one immediate fetch plus three polls")
}

func TestSession_PollErrorIsSwallowed(t *testing.T) {
	client := &fakeClient{scripts: [][]fetchStep{{
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("A", 500)}, Complete: false}},
		{err: errors.New("transient upstream hiccup")},
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("B", 700)}, Complete: true}},
	}}}

	sess := startTestSession(t, client, testSessionConfig())
	waitDone(t, sess)

	assert.Equal(t, StateCompleted, sess.State())
	assert.Equal(t, 2, sess.MasterSize(), "accumulated results survive a failed poll")
	assert.Empty(t, sess.Snapshot().Error)
}

func TestSession_InitiationFailureIsFatal(t *testing.T) {
	client := &fakeClient{startErr: errors.New("provider down")}

	sess := startTestSession(t, client, testSessionConfig())
	waitDone(t, sess)

	assert.Equal(t, StateFailed, sess.State())

	snap := sess.Snapshot()
	assert.NotEmpty(t, snap.Error)
	assert.NotContains(t, snap.Error, "provider down", "the consumer sees a generic message")
}

func TestSession_CancellationStopsPolling(t *testing.T) {
	client := &fakeClient{scripts: [][]fetchStep{{
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("A", 500)}, Complete: false}},
	}}}

	sess := startTestSession(t, client, testSessionConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.WaitReady(ctx))

	sess.Cancel()
	waitDone(t, sess)

	assert.Equal(t, StateCancelled, sess.State())

	_, before := client.counts()
	time.Sleep(30 * time.Millisecond)
	_, after := client.counts()
	assert.Equal(t, before, after, "no further requests after cancellation")
}

func TestSession_ZeroPriceAnomalyScenario(t *testing.T) {
	// Batch 1 delivers a priced offer and a zero-priced placeholder, then
	// completes; the restart's batches only repeat the placeholder.
	client := &fakeClient{scripts: [][]fetchStep{
		{{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("A", 500), pricedTrip("B", 0)}, Complete: true}}},
		{{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("B", 0)}, Complete: true}}},
	}}

	sess := startTestSession(t, client, testSessionConfig())
	waitDone(t, sess)

	assert.Equal(t, StateCompleted, sess.State())
	assert.Equal(t, 2, sess.MasterSize(), "placeholder stays in the master set")
	assert.Equal(t, 1, sess.Restarts(), "exactly one restart per lineage")

	starts, _ := client.counts()
	assert.Equal(t, 2, starts, "no second restart for persistent anomalies")

	snap := sess.Snapshot()
	require.Len(t, snap.Results, 1, "the placeholder never reaches the view")
	assert.Equal(t, "A", snap.Results[0].ID)
	assert.Equal(t, 1, snap.TotalFlightsFound)
}

func TestSession_NoRestartWithoutAnomalies(t *testing.T) {
	client := &fakeClient{scripts: [][]fetchStep{{
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("A", 500)}, Complete: true}},
	}}}

	sess := startTestSession(t, client, testSessionConfig())
	waitDone(t, sess)

	assert.Equal(t, 0, sess.Restarts())
	starts, _ := client.counts()
	assert.Equal(t, 1, starts)
}

func TestSession_FilterSortAndLoadMore(t *testing.T) {
	trips := []pricing.Trip{
		pricedTrip("A", 400),
		pricedTrip("B", 600),
		pricedTrip("C", 900),
		pricedTrip("D", 1600),
	}
	client := &fakeClient{scripts: [][]fetchStep{{
		{page: &pricing.ResultsPage{Trips: trips, Complete: true}},
	}}}

	config := testSessionConfig()
	config.PageSize = 2

	sess := startTestSession(t, client, config)
	waitDone(t, sess)

	snap := sess.Snapshot()
	assert.Len(t, snap.Results, 2)
	assert.True(t, snap.CanLoadMore)
	assert.Equal(t, 4, snap.TotalFlightsFound)

	sess.LoadMore()
	snap = sess.Snapshot()
	assert.Len(t, snap.Results, 4)
	assert.False(t, snap.CanLoadMore)
	assert.Equal(t, 2, snap.Page)

	sess.UpdateFilters(FilterOptions{PriceRange: "500-1000"})
	snap = sess.Snapshot()
	assert.Equal(t, 1, snap.Page, "filter change resets the window")
	assert.Len(t, snap.Results, 2)

	sess.UpdateSort(SortOptions{By: "price", Order: "desc"})
	snap = sess.Snapshot()
	assert.Equal(t, "C", snap.Results[0].ID)

	starts, fetches := client.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, fetches, "filtering, sorting and paging never re-fetch upstream")
}

func TestSession_LoadMoreSaturates(t *testing.T) {
	client := &fakeClient{scripts: [][]fetchStep{{
		{page: &pricing.ResultsPage{Trips: []pricing.Trip{pricedTrip("A", 100), pricedTrip("B", 200)}, Complete: true}},
	}}}

	config := testSessionConfig()
	config.PageSize = 2

	sess := startTestSession(t, client, config)
	waitDone(t, sess)

	before := sess.Snapshot()
	assert.False(t, before.CanLoadMore)

	sess.LoadMore()
	after := sess.Snapshot()
	assert.Equal(t, before.Page, after.Page, "saturated load-more is a no-op")
}
