// Package accesscontroller implements the gas station's request-rate
// predicate layer: a per-requester-address fixed-window counter, reset at
// each calendar minute, backed by a bounded hashicorp/golang-lru cache.
package accesscontroller

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Checker decides whether a request from address should be allowed. An
// arbitrary predicate rule language over request attributes is out of
// scope; only a per-address rate limiter is implemented.
type Checker interface {
	Allow(address string) error
}

// ErrRateLimited is returned by CountByAddressLimiter.Allow when an
// address has exceeded its per-minute request budget.
type ErrRateLimited struct {
	Address string
	Limit   int
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("address %s exceeded %d requests/minute", e.Address, e.Limit)
}

type window struct {
	mu        sync.Mutex
	minuteKey int64
	count     int
}

// CountByAddressLimiter enforces a fixed per-address-per-minute request
// budget using a bounded LRU of per-address counting windows, so that the
// set of tracked addresses cannot grow without bound under load from many
// distinct callers.
type CountByAddressLimiter struct {
	cache *lru.Cache
	limit int
}

// NewCountByAddressLimiter builds a limiter tracking up to maxAddresses
// distinct addresses at once, each allowed up to limitPerMinute requests
// per calendar minute (the count resets when the Unix minute changes).
func NewCountByAddressLimiter(maxAddresses int, limitPerMinute int) (*CountByAddressLimiter, error) {
	if maxAddresses <= 0 {
		maxAddresses = 10_000
	}
	cache, err := lru.New(maxAddresses)
	if err != nil {
		return nil, fmt.Errorf("constructing access controller cache: %w", err)
	}
	return &CountByAddressLimiter{cache: cache, limit: limitPerMinute}, nil
}

// Allow increments address's counter for the current minute and returns
// ErrRateLimited once the configured limit is exceeded.
func (l *CountByAddressLimiter) Allow(address string) error {
	if l.limit <= 0 {
		return nil
	}
	minuteKey := time.Now().Unix() / 60

	raw, ok := l.cache.Get(address)
	w, _ := raw.(*window)
	if !ok || w == nil {
		w = &window{}
		l.cache.Add(address, w)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.minuteKey != minuteKey {
		w.minuteKey = minuteKey
		w.count = 0
	}
	w.count++
	if w.count > l.limit {
		return &ErrRateLimited{Address: address, Limit: l.limit}
	}
	return nil
}

var _ Checker = (*CountByAddressLimiter)(nil)
