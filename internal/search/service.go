package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tripfare/pkg/cache"
	"tripfare/pkg/idgen"
	"tripfare/pkg/logger"
	"tripfare/pkg/pricing"
)

// Service owns the live sessions and the criteria-keyed snapshot cache.
// One session per criteria lineage; starting a replacement cancels the
// session it replaces.
type Service struct {
	client pricing.Client
	cache  cache.Cache
	ttl    time.Duration
	idgen  idgen.Generator
	config SessionConfig
	logger logger.Client

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewService(client pricing.Client, cache cache.Cache, ttlMinutes int, gen idgen.Generator, config SessionConfig, log logger.Client) *Service {
	return &Service{
		client:   client,
		cache:    cache,
		ttl:      time.Duration(ttlMinutes) * time.Minute,
		idgen:    gen,
		config:   config.withDefaults(),
		logger:   log,
		sessions: make(map[string]*Session),
	}
}

// StartSearch validates the criteria, cancels the session being replaced
// (a criteria change always means a fresh session), and either replays a
// cached completed search or starts a polling session. It returns once the
// first results fetch has been applied, not once polling finishes.
func (s *Service) StartSearch(ctx context.Context, criteria Criteria, replacesID string) (Snapshot, error) {
	if err := validateCriteria(criteria); err != nil {
		return Snapshot{}, err
	}

	if replacesID != "" {
		s.StopSearch(replacesID)
	}

	id := s.idgen.GenerateID()
	cacheKey := generateCacheKey(criteria)

	if offers, hit := s.cachedOffers(ctx, cacheKey); hit {
		s.logger.Info("search served from cache",
			logger.Field{Key: "session_id", Value: id},
			logger.Field{Key: "cache_key", Value: cacheKey},
			logger.Field{Key: "offers", Value: len(offers)},
		)
		sess := newCompletedSession(id, criteria, offers, s.config, s.logger)
		s.register(sess)
		return sess.Snapshot(), nil
	}

	sess := newSession(id, criteria, s.client, s.config, s.logger)
	sess.onComplete = func(offers []FlightOffer) {
		s.storeOffers(cacheKey, offers)
	}
	s.register(sess)

	s.logger.Info("starting flight search",
		logger.Field{Key: "session_id", Value: id},
		logger.Field{Key: "route", Value: fmt.Sprintf("%s->%s", criteria.Origin, criteria.Destination)},
	)

	// The session outlives the request that started it.
	sess.start(context.Background())

	if err := sess.WaitReady(ctx); err != nil {
		return sess.Snapshot(), nil
	}

	return sess.Snapshot(), nil
}

// Snapshot returns the current view for a session.
func (s *Service) Snapshot(id string) (Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// UpdateFilters applies new filters and returns the recomputed view.
func (s *Service) UpdateFilters(id string, filters FilterOptions) (Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.UpdateFilters(filters)
	return sess.Snapshot(), nil
}

// UpdateSort applies a new sort order and returns the recomputed view.
func (s *Service) UpdateSort(id string, sortOpt SortOptions) (Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.UpdateSort(sortOpt)
	return sess.Snapshot(), nil
}

// LoadMore grows the visible window for a session.
func (s *Service) LoadMore(id string) (Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.LoadMore()
	return sess.Snapshot(), nil
}

// StopSearch cancels a session and drops it from the registry. Unknown IDs
// are a no-op: the consumer tearing down twice is not an error.
func (s *Service) StopSearch(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.Cancel()
		s.logger.Info("session cancelled", logger.Field{Key: "session_id", Value: id})
	}
}

func (s *Service) register(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Service) lookup(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, newNotFoundError("unknown search session")
	}
	return sess, nil
}

func (s *Service) cachedOffers(ctx context.Context, key string) ([]FlightOffer, bool) {
	cached, err := s.cache.Get(ctx, key)
	if err != nil || cached == "" {
		return nil, false
	}

	var offers []FlightOffer
	if err := json.Unmarshal([]byte(cached), &offers); err != nil {
		s.logger.Error("failed to unmarshal cached offers", logger.Field{Key: "err", Value: err})
		return nil, false
	}
	return offers, true
}

func (s *Service) storeOffers(key string, offers []FlightOffer) {
	data, err := json.Marshal(offers)
	if err != nil {
		s.logger.Error("failed to marshal offers for caching", logger.Field{Key: "err", Value: err})
		return
	}

	// Background context so a torn-down consumer cannot abort the write.
	if err := s.cache.Set(context.Background(), key, string(data), s.ttl); err != nil {
		s.logger.Error("failed to cache completed search",
			logger.Field{Key: "err", Value: err},
			logger.Field{Key: "cache_key", Value: key},
		)
	}
}

func validateCriteria(c Criteria) error {
	if c.Origin == "" || c.Destination == "" {
		return newValidationError("origin and destination are required")
	}
	if c.OutboundDate == "" {
		return newValidationError("outbound date is required")
	}
	if c.Adults <= 0 {
		return newValidationError("at least one adult passenger is required")
	}
	return nil
}

// generateCacheKey creates a deterministic key from search parameters
func generateCacheKey(c Criteria) string {
	key := fmt.Sprintf("offers:%s:%s:%s:%s:%d:%d:%d:%s:%t",
		c.Origin,
		c.Destination,
		c.OutboundDate,
		c.InboundDate,
		c.Adults,
		c.Children,
		c.Infants,
		c.CabinClass,
		c.IsDirect,
	)

	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("flight:offers:%x", hash[:16])
}
