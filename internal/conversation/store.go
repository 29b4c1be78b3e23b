package conversation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/wolfman30/padel-booking-bot/internal/keylock"
	"github.com/wolfman30/padel-booking-bot/internal/nlu"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

const (
	defaultStateTTL      = 30 * time.Minute
	defaultSweepInterval = 5 * time.Minute
	defaultHistoryLimit  = 10
	storeShards          = 16
)

// Store owns every requester's State. Turns for one requester are serialized
// through Do; different requesters proceed in parallel.
type Store struct {
	shards   [storeShards]shard
	turns    *keylock.Table
	ttl      time.Duration
	interval time.Duration
	limit    int
	now      func() time.Time
	logger   *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

type shard struct {
	mu     sync.RWMutex
	states map[string]State
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithTTL sets how long an idle conversation survives.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithSweepInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithHistoryLimit caps the messages kept per conversation.
func WithHistoryLimit(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store. Call Start to run the expiry sweeper.
func NewStore(logger *logging.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		turns:    keylock.New(),
		ttl:      defaultStateTTL,
		interval: defaultSweepInterval,
		limit:    defaultHistoryLimit,
		now:      time.Now,
		logger:   logger,
	}
	for i := range s.shards {
		s.shards[i].states = make(map[string]State)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn with exclusive access to the requester's state. Changes are
// kept only when fn returns nil, so a failed turn leaves the state as it was.
// An expired state is replaced by a fresh one before fn sees it.
func (s *Store) Do(ctx context.Context, requester string, fn func(*State) error) error {
	release, err := s.turns.Lock(ctx, requester)
	if err != nil {
		return err
	}
	defer release()

	now := s.now()
	sh := s.shard(requester)
	sh.mu.RLock()
	current, ok := sh.states[requester]
	sh.mu.RUnlock()
	if !ok || s.expired(current, now) {
		current = State{Requester: requester, Phase: PhaseEmpty}
	}

	working := current.clone()
	if err := fn(&working); err != nil {
		return err
	}

	working.Requester = requester
	working.LastActivity = s.now()
	if n := len(working.History); n > s.limit {
		working.History = append([]nlu.ChatMessage(nil), working.History[n-s.limit:]...)
	}
	sh.mu.Lock()
	sh.states[requester] = working
	sh.mu.Unlock()
	return nil
}

// Get returns a snapshot of the requester's live state.
func (s *Store) Get(requester string) (State, bool) {
	sh := s.shard(requester)
	sh.mu.RLock()
	st, ok := sh.states[requester]
	sh.mu.RUnlock()
	if !ok || s.expired(st, s.now()) {
		return State{}, false
	}
	return st.clone(), true
}

// Reset discards the requester's state.
func (s *Store) Reset(ctx context.Context, requester string) error {
	release, err := s.turns.Lock(ctx, requester)
	if err != nil {
		return err
	}
	defer release()

	sh := s.shard(requester)
	sh.mu.Lock()
	delete(sh.states, requester)
	sh.mu.Unlock()
	return nil
}

// Len reports how many conversations are stored, expired ones included.
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.states)
		sh.mu.RUnlock()
	}
	return total
}

// Sweep removes expired conversations and returns how many it dropped.
// Conversations with a turn in flight are skipped until the next sweep.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		var stale []string
		for key, st := range sh.states {
			if s.expired(st, now) {
				stale = append(stale, key)
			}
		}
		sh.mu.RUnlock()

		for _, key := range stale {
			release, ok := s.turns.TryLock(key)
			if !ok {
				continue
			}
			sh.mu.Lock()
			if st, exists := sh.states[key]; exists && s.expired(st, now) {
				delete(sh.states, key)
				removed++
			}
			sh.mu.Unlock()
			release()
		}
	}
	return removed
}

// Start launches the periodic sweeper. It stops when ctx is done or Stop is
// called.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Debug("expired conversations swept", "count", n)
				}
			}
		}
	}()
}

// Stop signals the sweeper to exit.
func (s *Store) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the sweeper has exited.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) expired(st State, now time.Time) bool {
	return !st.LastActivity.IsZero() && now.Sub(st.LastActivity) > s.ttl
}

func (s *Store) shard(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%storeShards]
}
