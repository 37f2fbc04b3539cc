package llm

import (
	"sync"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// Factory builds a model client from its config
type Factory func(ModelConfig) (llms.Model, error)

// Cache holds one client per model ID. It is owned by whoever builds
// generators and passed down explicitly. A disabled cache builds a fresh
// client on every Get.
type Cache struct {
	mu      sync.Mutex
	models  map[string]llms.Model
	factory Factory
	enabled bool
	logger  *zap.Logger
}

// NewCache creates a cache. A nil factory selects NewModel.
func NewCache(enabled bool, factory Factory, logger *zap.Logger) *Cache {
	if factory == nil {
		factory = NewModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		models:  make(map[string]llms.Model),
		factory: factory,
		enabled: enabled,
		logger:  logger.Named("model-cache"),
	}
}

// Get returns the cached client for cfg, building it on first use
func (c *Cache) Get(cfg ModelConfig) (llms.Model, error) {
	id := cfg.ID()
	if !c.enabled {
		return c.factory(cfg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[id]; ok {
		c.logger.Debug("model cache hit", zap.String("model", id))
		return m, nil
	}
	m, err := c.factory(cfg)
	if err != nil {
		return nil, err
	}
	c.models[id] = m
	c.logger.Info("model loaded", zap.String("model", id))
	return m, nil
}

// Invalidate drops one model so the next Get rebuilds it
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.models, id)
}

// Clear drops every cached model
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = make(map[string]llms.Model)
	c.logger.Info("model cache cleared")
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}
