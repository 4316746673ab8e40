package steam

import (
	"context"
	"slices"
	"strconv"
	gosync "sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SchemaCacheTTL is how long a cached achievement schema is served before it
// is fetched again.
const SchemaCacheTTL = 24 * time.Hour

// schemaEntry is a cached schema and when it was fetched.
type schemaEntry struct {
	achievements []SchemaAchievement
	fetchedAt    time.Time
}

// CachedClient is a Client whose schema lookups are shared across users.
// Schemas are publisher data, so one fetch serves every user who owns the
// game until the entry goes stale. Errors are never cached.
type CachedClient struct {
	*Client

	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      gosync.RWMutex
	schemas map[int64]schemaEntry
}

// NewCachedClient wraps c. A non-positive ttl uses SchemaCacheTTL.
func NewCachedClient(c *Client, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = SchemaCacheTTL
	}
	return &CachedClient{
		Client:  c,
		ttl:     ttl,
		now:     time.Now,
		schemas: make(map[int64]schemaEntry),
	}
}

// GetSchemaForGame returns the cached schema when fresh, and otherwise
// fetches it once for all concurrent callers. A caller whose ctx ends stops
// waiting without cancelling the fetch for the others.
func (c *CachedClient) GetSchemaForGame(ctx context.Context, appID int64) ([]SchemaAchievement, error) {
	c.mu.RLock()
	entry, ok := c.schemas[appID]
	c.mu.RUnlock()

	// Lazy invalidation: stale entries are refetched on read.
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return slices.Clone(entry.achievements), nil
	}

	ch := c.group.DoChan(strconv.FormatInt(appID, 10), func() (any, error) {
		// The fetch is shared, so one caller going away must not cancel it
		// for the rest. The client timeout still bounds it.
		achievements, err := c.Client.GetSchemaForGame(context.WithoutCancel(ctx), appID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.schemas[appID] = schemaEntry{achievements: achievements, fetchedAt: c.now()}
		c.mu.Unlock()
		return achievements, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]SchemaAchievement)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of cached schemas.
func (c *CachedClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.schemas)
}
