package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tripfare/pkg/logger"
	"tripfare/pkg/pricing"
)

// State is the lifecycle phase of one polling session.
type State string

const (
	StateIdle       State = "idle"
	StateInitiating State = "initiating"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultMaxPollAttempts = 30
	defaultPageSize        = 20

	// One restart per session lineage. The upstream occasionally returns
	// placeholder zero-price rows and backfills them on a fresh search;
	// one retry gives the backfill a chance without looping on a broken
	// provider.
	maxRestarts = 1
)

type SessionConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	PageSize        int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	return c
}

// Session owns one search: the upstream polling loop, the master set it
// accumulates, and the projected view over it. The polling goroutine is the
// only writer of the master set; snapshot readers go through the lock.
type Session struct {
	id       string
	criteria Criteria
	client   pricing.Client
	config   SessionConfig
	logger   logger.Client

	// onComplete fires once when the lineage finishes cleanly (completed,
	// no zero-priced leftovers). Used by the service to cache results.
	onComplete func(offers []FlightOffer)

	mu          sync.RWMutex
	state       State
	master      []FlightOffer
	filters     FilterOptions
	sortOpt     SortOptions
	page        int
	proj        Projection
	errMsg      string
	firstLoaded bool
	isFiltering bool
	restarts    int

	cancelled atomic.Bool
	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

func newSession(id string, criteria Criteria, client pricing.Client, config SessionConfig, log logger.Client) *Session {
	return &Session{
		id:       id,
		criteria: criteria,
		client:   client,
		config:   config.withDefaults(),
		logger:   log,
		state:    StateIdle,
		sortOpt:  SortOptions{By: "price", Order: "asc"},
		page:     1,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// newCompletedSession seeds a session from previously cached offers; it
// never touches the upstream.
func newCompletedSession(id string, criteria Criteria, offers []FlightOffer, config SessionConfig, log logger.Client) *Session {
	s := newSession(id, criteria, nil, config, log)
	s.state = StateCompleted
	s.firstLoaded = true
	s.master = Merge(nil, offers)
	s.proj = Project(s.master, s.filters, s.sortOpt, s.page, s.config.PageSize)
	s.markReady()
	close(s.done)
	return s
}

func (s *Session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// run drives one session lineage: initiate, poll until the upstream reports
// completion or attempts run out, then restart at most once if zero-priced
// anomalies survived completion.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.markReady()

	for {
		if !s.runSearch(ctx) {
			return
		}
		if !s.shouldRestart() {
			s.finish()
			return
		}
		s.logger.Warn("restarting session after zero-price anomalies",
			logger.Field{Key: "session_id", Value: s.id},
		)
	}
}

// runSearch performs one initiate-and-poll pass. It returns true when the
// pass reached completion and false when the session was cancelled or
// failed to initiate.
func (s *Session) runSearch(ctx context.Context) bool {
	s.setState(StateInitiating)

	token, err := s.client.StartSearch(ctx, s.searchRequest())
	if err != nil {
		if s.cancelled.Load() {
			s.setState(StateCancelled)
			return false
		}
		s.logger.Error("search initiation failed",
			logger.Field{Key: "session_id", Value: s.id},
			logger.Field{Key: "err", Value: err},
		)
		// Fatal for the session; the consumer sees a generic error.
		s.fail("flight search is currently unavailable")
		return false
	}

	if s.cancelled.Load() {
		s.setState(StateCancelled)
		return false
	}

	// One immediate fetch before the first paint is unblocked. The first
	// page must not wait for the first poll tick.
	complete, fetchErr := s.fetchAndMerge(ctx, token)
	s.markReady()
	if fetchErr != nil {
		if s.cancelled.Load() {
			s.setState(StateCancelled)
			return false
		}
		s.logger.Warn("initial results fetch failed",
			logger.Field{Key: "session_id", Value: s.id},
			logger.Field{Key: "err", Value: fetchErr},
		)
	}
	if complete {
		s.setState(StateCompleted)
		return true
	}

	s.setState(StatePolling)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < s.config.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			s.setState(StateCancelled)
			return false
		case <-ticker.C:
		}

		if s.cancelled.Load() {
			s.setState(StateCancelled)
			return false
		}

		complete, err := s.fetchAndMerge(ctx, token)
		if err != nil {
			// One transient failure must not discard the results gathered
			// so far; skip to the next tick.
			s.logger.Warn("poll fetch failed",
				logger.Field{Key: "session_id", Value: s.id},
				logger.Field{Key: "attempt", Value: attempt + 1},
				logger.Field{Key: "err", Value: err},
			)
			continue
		}
		if complete {
			// Stop the instant the upstream says it is done, not on the
			// next scheduled tick.
			break
		}
	}

	s.setState(StateCompleted)
	return true
}

// fetchAndMerge pulls one results batch and merges it into the master set.
// A response arriving after cancellation is discarded unapplied.
func (s *Session) fetchAndMerge(ctx context.Context, token string) (bool, error) {
	page, err := s.client.FetchResults(ctx, token)
	if err != nil {
		return false, err
	}

	if s.cancelled.Load() {
		return false, nil
	}

	batch := NormalizeBatch(page.Trips)

	s.mu.Lock()
	s.master = Merge(s.master, batch)
	s.firstLoaded = true
	s.recomputeLocked()
	s.mu.Unlock()

	return page.Complete, nil
}

// shouldRestart implements the retry controller: restart only once per
// lineage, and only when zero-priced offers survive completion.
func (s *Session) shouldRestart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restarts >= maxRestarts {
		return false
	}
	if countZeroPriced(s.master) == 0 {
		return false
	}
	s.restarts++
	return true
}

// countZeroPriced scans for offers whose resolved price never settled.
// They are hidden from every view but kept in the master set so completion
// can decide whether a restart is warranted.
func countZeroPriced(offers []FlightOffer) int {
	n := 0
	for _, o := range offers {
		if o.Price <= 0 {
			n++
		}
	}
	return n
}

// finish runs the clean-completion hook. Lineages that still carry
// zero-priced offers after the retry are not considered clean; their
// anomalous rows simply stay invisible.
func (s *Session) finish() {
	s.mu.RLock()
	cb := s.onComplete
	clean := s.state == StateCompleted && countZeroPriced(s.master) == 0 && len(s.master) > 0
	offers := make([]FlightOffer, len(s.master))
	copy(offers, s.master)
	s.mu.RUnlock()

	if clean && cb != nil {
		cb(offers)
	}
}

// Cancel flips the cooperative cancellation flag. In-flight calls are not
// aborted mid-flight; their results are discarded on return.
func (s *Session) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.state != StateCompleted && s.state != StateFailed {
		s.state = StateCancelled
	}
	s.mu.Unlock()
	s.markReady()
}

// WaitReady blocks until the initial fetch has been applied, the session
// failed, or the context expires.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	// Cancelled and failed are terminal.
	if s.state != StateCancelled && s.state != StateFailed {
		s.state = state
	}
	s.mu.Unlock()
}

func (s *Session) fail(msg string) {
	s.mu.Lock()
	s.state = StateFailed
	s.errMsg = msg
	s.mu.Unlock()
	s.markReady()
}

func (s *Session) searchRequest() pricing.SearchRequest {
	return pricing.SearchRequest{
		Adults:       s.criteria.Adults,
		Children:     s.criteria.Children,
		Infants:      s.criteria.Infants,
		CabinClass:   s.criteria.CabinClass,
		Origin:       s.criteria.Origin,
		Destination:  s.criteria.Destination,
		OutboundDate: s.criteria.OutboundDate,
		InboundDate:  s.criteria.InboundDate,
		IsDirect:     s.criteria.IsDirect,
	}
}

// recomputeLocked re-derives the projection; callers hold the write lock.
func (s *Session) recomputeLocked() {
	s.proj = Project(s.master, s.filters, s.sortOpt, s.page, s.config.PageSize)
}

// UpdateFilters swaps the active filters and resets the window to page one.
// No upstream traffic: filtering is entirely client-side.
func (s *Session) UpdateFilters(filters FilterOptions) {
	s.mu.Lock()
	s.isFiltering = true
	s.filters = filters
	s.page = 1
	s.recomputeLocked()
	s.isFiltering = false
	s.mu.Unlock()
}

// UpdateSort swaps the sort key and resets the window to page one.
func (s *Session) UpdateSort(sortOpt SortOptions) {
	s.mu.Lock()
	s.isFiltering = true
	s.sortOpt = sortOpt
	s.page = 1
	s.recomputeLocked()
	s.isFiltering = false
	s.mu.Unlock()
}

// LoadMore grows the visible window by one page. It saturates once every
// filtered offer is visible.
func (s *Session) LoadMore() {
	s.mu.Lock()
	if s.proj.FilteredCount > len(s.proj.Visible) {
		s.page++
		s.recomputeLocked()
	}
	s.mu.Unlock()
}

// Snapshot returns the current consumer-facing view.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]FlightOffer, len(s.proj.Visible))
	copy(results, s.proj.Visible)

	searching := s.state == StateInitiating || s.state == StatePolling

	return Snapshot{
		SessionID:         s.id,
		Results:           results,
		IsLoading:         !s.firstLoaded && s.state != StateFailed,
		IsInitialLoad:     !s.firstLoaded,
		IsSearching:       searching,
		IsFiltering:       s.isFiltering,
		Error:             s.errMsg,
		AirlineOptions:    s.proj.AirlineOptions,
		Currency:          s.proj.Currency,
		TotalFlightsFound: s.proj.TotalFlights,
		CanLoadMore:       s.proj.FilteredCount > len(s.proj.Visible),
		Page:              s.page,
	}
}

// MasterSize reports the full accumulated set size, anomalies included.
func (s *Session) MasterSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.master)
}

// Restarts reports how many times this lineage has restarted.
func (s *Session) Restarts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restarts
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed when the polling goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
