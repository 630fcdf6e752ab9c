package llm

import (
	"sync"
	"time"

	"github.com/hearthfire/hearth/internal/config"
)

// Strategy determines how long backend models stay loaded.
type Strategy string

const (
	// StrategyRAM keeps models resident for fast swaps.
	StrategyRAM Strategy = "ram"
	// StrategySSD unloads quickly, bounding the warm set to one model.
	StrategySSD Strategy = "ssd"
	// StrategyNone always unloads.
	StrategyNone Strategy = "none"
)

// ModelState is a snapshot entry of the warm-set tracking map.
type ModelState struct {
	Name     string    `json:"name"`
	LastUsed time.Time `json:"last_used"`
}

// CacheManager tracks hot models and renders the keep_alive hint that
// realizes the configured strategy. It never issues unload commands; the
// backend evicts on its own when the hint lapses.
type CacheManager struct {
	mu        sync.Mutex
	strategy  Strategy
	maxModels int
	lastUsed  map[string]time.Time
}

// NewCacheManager builds the cache policy from configuration.
func NewCacheManager(cfg *config.CacheConfig) *CacheManager {
	strategy := Strategy(cfg.Type)
	maxModels := cfg.MaxModels
	switch strategy {
	case StrategyRAM:
	case StrategySSD:
		maxModels = 1
	default:
		strategy = StrategyNone
		maxModels = 0
	}
	return &CacheManager{
		strategy:  strategy,
		maxModels: maxModels,
		lastUsed:  map[string]time.Time{},
	}
}

// KeepAlive renders the duration hint sent with every backend request.
func (c *CacheManager) KeepAlive() string {
	switch c.strategy {
	case StrategyRAM:
		return "30m"
	case StrategySSD:
		return "2m"
	default:
		return "0"
	}
}

// Strategy returns the active strategy.
func (c *CacheManager) Strategy() Strategy {
	return c.strategy
}

// MarkUsed records a successful call against model and evicts the LRU
// entry when the warm set exceeds its bound.
func (c *CacheManager) MarkUsed(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxModels == 0 {
		return
	}
	c.lastUsed[model] = time.Now()

	for len(c.lastUsed) > c.maxModels {
		var lru string
		var oldest time.Time
		for name, used := range c.lastUsed {
			if lru == "" || used.Before(oldest) {
				lru = name
				oldest = used
			}
		}
		delete(c.lastUsed, lru)
	}
}

// Warm reports whether model is currently tracked as loaded.
func (c *CacheManager) Warm(model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lastUsed[model]
	return ok
}

// Snapshot returns a copy of the warm-set tracking map.
func (c *CacheManager) Snapshot() []ModelState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ModelState, 0, len(c.lastUsed))
	for name, used := range c.lastUsed {
		out = append(out, ModelState{Name: name, LastUsed: used})
	}
	return out
}
