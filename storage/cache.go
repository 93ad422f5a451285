package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nour-derwich/system-management-pulse-hr/domain"
)

// Cache wraps a Store with Redis-backed caching of the per-board reads
// that back resync snapshots. Any mutation of a board evicts its keys, so
// readers never see a snapshot older than the last acked change.
type Cache struct {
	base  domain.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base domain.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func tasksCacheKey(boardID string) string   { return "board-tasks:" + boardID }
func columnsCacheKey(boardID string) string { return "board-columns:" + boardID }

// ETags are excluded from the wire representation of tasks and columns,
// but conditional writes need them back after a cache hit, so cached
// entries carry the ETag explicitly.
type cachedTask struct {
	domain.Task
	CachedETag string `json:"etag,omitempty"`
}

type cachedColumn struct {
	domain.Column
	CachedETag string `json:"etag,omitempty"`
}

func (c *Cache) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	if cached, ok := loadCached[[]cachedTask](ctx, c.redis, tasksCacheKey(boardID)); ok {
		tasks := make([]domain.Task, len(cached))
		for i, ct := range cached {
			tasks[i] = ct.Task
			tasks[i].ETag = ct.CachedETag
		}
		return tasks, nil
	}
	tasks, err := c.base.ListTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}
	entries := make([]cachedTask, len(tasks))
	for i, t := range tasks {
		entries[i] = cachedTask{Task: t, CachedETag: t.ETag}
	}
	c.store(ctx, tasksCacheKey(boardID), entries)
	return tasks, nil
}

func (c *Cache) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	if cached, ok := loadCached[[]cachedColumn](ctx, c.redis, columnsCacheKey(boardID)); ok {
		columns := make([]domain.Column, len(cached))
		for i, cc := range cached {
			columns[i] = cc.Column
			columns[i].ETag = cc.CachedETag
		}
		return columns, nil
	}
	columns, err := c.base.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	entries := make([]cachedColumn, len(columns))
	for i, col := range columns {
		entries[i] = cachedColumn{Column: col, CachedETag: col.ETag}
	}
	c.store(ctx, columnsCacheKey(boardID), entries)
	return columns, nil
}

func (c *Cache) ApplyTaskWrites(ctx context.Context, boardID string, writes []domain.TaskWrite) error {
	if err := c.base.ApplyTaskWrites(ctx, boardID, writes); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) InsertColumn(ctx context.Context, col domain.Column) error {
	if err := c.base.InsertColumn(ctx, col); err != nil {
		return err
	}
	c.evict(ctx, col.BoardID)
	return nil
}

func (c *Cache) UpdateColumnOrders(ctx context.Context, boardID string, orders map[string]int) error {
	if err := c.base.UpdateColumnOrders(ctx, boardID, orders); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) UpdateColumnTitle(ctx context.Context, boardID, columnID, title string) error {
	if err := c.base.UpdateColumnTitle(ctx, boardID, columnID, title); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) DeleteColumn(ctx context.Context, boardID, columnID string) error {
	if err := c.base.DeleteColumn(ctx, boardID, columnID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) DeleteBoard(ctx context.Context, boardID string) error {
	if err := c.base.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

// Pass-through operations. Board and tag reads are cheap single-partition
// lookups, caching them bought nothing measurable.

func (c *Cache) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	return c.base.GetBoard(ctx, boardID)
}

func (c *Cache) ListBoards(ctx context.Context) ([]domain.Board, error) {
	return c.base.ListBoards(ctx)
}

func (c *Cache) InsertBoard(ctx context.Context, b domain.Board) error {
	return c.base.InsertBoard(ctx, b)
}

func (c *Cache) UpdateBoard(ctx context.Context, boardID string, upd domain.BoardUpdate) error {
	return c.base.UpdateBoard(ctx, boardID, upd)
}

func (c *Cache) GetColumn(ctx context.Context, boardID, columnID string) (*domain.Column, error) {
	return c.base.GetColumn(ctx, boardID, columnID)
}

func (c *Cache) GetTask(ctx context.Context, boardID, taskID string) (*domain.Task, error) {
	return c.base.GetTask(ctx, boardID, taskID)
}

func (c *Cache) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return c.base.ListTags(ctx)
}

func (c *Cache) InsertTag(ctx context.Context, tag domain.Tag) error {
	return c.base.InsertTag(ctx, tag)
}

func loadCached[T any](ctx context.Context, client *redis.Client, key string) (T, bool) {
	var zero T
	if client == nil {
		return zero, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		// Misses and transient redis errors both fall back to the backing
		// store; the key itself may still be good, so leave it alone.
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		// A key we cannot decode is poison, drop it.
		_ = client.Del(ctx, key).Err()
		return zero, false
	}
	return value, true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(boardID), columnsCacheKey(boardID)).Result()
}
