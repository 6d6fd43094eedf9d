// Package resolvercache backs the resolver's invalidate contract with an
// in-process cache, optionally mirrored to Redis so multiple engine hosts
// sharing one IPAM server observe the same invalidations.
package resolvercache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache is the collaborator contract the executor calls into after a
// successful mutation that carries a resource_path.
type Cache interface {
	Invalidate(ctx context.Context, path, objectType string)
	Get(ctx context.Context, path string) (map[string]any, bool)
	Set(ctx context.Context, path string, value map[string]any, ttl time.Duration)
}

// InProcess is a mutex-guarded map cache with no external dependency.
type InProcess struct {
	mu    sync.Mutex
	items map[string]map[string]any
}

func NewInProcess() *InProcess {
	return &InProcess{items: map[string]map[string]any{}}
}

func (c *InProcess) Get(ctx context.Context, path string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[path]
	return v, ok
}

func (c *InProcess) Set(ctx context.Context, path string, value map[string]any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[path] = value
}

// Invalidate removes path and its derived parent from the cache. Parent
// derivation: if the path's last "/"-segment is all digits, the path is
// treated as a CIDR-in-config form and the parent is the first segment
// (config); otherwise the parent is everything before the last "/".
func (c *InProcess) Invalidate(ctx context.Context, path, objectType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, path)
	if parent := ParentOf(path); parent != "" {
		delete(c.items, parent)
	}
}

// ParentOf derives the conservative parent-invalidation path for a given
// resource path, per the resolver-cache invalidation rule.
func ParentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	tail := path[idx+1:]
	if isAllDigits(tail) {
		segs := strings.Split(path, "/")
		for _, s := range segs {
			if s != "" {
				return s
			}
		}
		return ""
	}
	return path[:idx]
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RedisMirrored wraps an InProcess cache with a Redis-backed mirror. On
// Redis unavailability it falls back silently to the in-process map and logs
// once per outage rather than failing lookups.
type RedisMirrored struct {
	local       *InProcess
	redis       *redis.Client
	log         *logrus.Logger
	outageMu    sync.Mutex
	outageLogged bool
}

func NewRedisMirrored(client *redis.Client, log *logrus.Logger) *RedisMirrored {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisMirrored{local: NewInProcess(), redis: client, log: log}
}

func (c *RedisMirrored) Get(ctx context.Context, path string) (map[string]any, bool) {
	return c.local.Get(ctx, path)
}

func (c *RedisMirrored) Set(ctx context.Context, path string, value map[string]any, ttl time.Duration) {
	c.local.Set(ctx, path, value, ttl)
}

func (c *RedisMirrored) Invalidate(ctx context.Context, path, objectType string) {
	c.local.Invalidate(ctx, path, objectType)
	if err := c.redis.Del(ctx, redisKey(path)).Err(); err != nil {
		c.logOutageOnce(err)
		return
	}
	if parent := ParentOf(path); parent != "" {
		_ = c.redis.Del(ctx, redisKey(parent)).Err()
	}
	c.resetOutageFlag()
}

func (c *RedisMirrored) logOutageOnce(err error) {
	c.outageMu.Lock()
	defer c.outageMu.Unlock()
	if !c.outageLogged {
		c.log.WithError(err).Warn("resolver cache redis mirror unavailable, falling back to in-process cache")
		c.outageLogged = true
	}
}

func (c *RedisMirrored) resetOutageFlag() {
	c.outageMu.Lock()
	defer c.outageMu.Unlock()
	c.outageLogged = false
}

func redisKey(path string) string {
	return "resolvercache:" + path
}
