package cache

import (
	"maps"
	"sync"
	"time"

	"reader/internal/models"
)

// LoanCache holds the last fetched loan map in memory for a fixed TTL.
// It is owned by a single repository and never persisted.
type LoanCache struct {
	mu        sync.Mutex
	value     map[string]models.Loan
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewLoanCache creates an empty loan cache; now defaults to time.Now
func NewLoanCache(ttl time.Duration, now func() time.Time) *LoanCache {
	if now == nil {
		now = time.Now
	}
	return &LoanCache{ttl: ttl, now: now}
}

// Get returns a copy of the cached loans while they are fresh
func (c *LoanCache) Get() (map[string]models.Loan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value == nil || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return maps.Clone(c.value), true
}

// Set stores loans and restarts the TTL
func (c *LoanCache) Set(loans map[string]models.Loan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if loans == nil {
		loans = map[string]models.Loan{}
	}
	c.value = maps.Clone(loans)
	c.fetchedAt = c.now()
}

// Clear forgets the cached loans
func (c *LoanCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = nil
	c.fetchedAt = time.Time{}
}
