package core

import (
	"time"
)

// Config is the chat configuration shared by services
type Config struct {
	AccessCacheTTL     time.Duration `yaml:"accessCacheTTL"`
	AccessCacheBackend string        `yaml:"accessCacheBackend"` // memory or memcached
	RateLimitWindow    time.Duration `yaml:"rateLimitWindow"`
	RateLimitMax       int           `yaml:"rateLimitMax"`
	RateLimitBackend   string        `yaml:"rateLimitBackend"` // memory or redis
	PageSize           int           `yaml:"pageSize"`
	TypingInterval     time.Duration `yaml:"typingInterval"`
	Chains             []ChainConfig `yaml:"chains"`
}

type ChainConfig struct {
	ID          int64  `yaml:"id"`
	RPC         string `yaml:"rpc"`
	Marketplace string `yaml:"marketplace"`
}

// Normalize fills unset values with defaults
func (c *Config) Normalize() {
	if c.AccessCacheTTL <= 0 {
		c.AccessCacheTTL = DefaultAccessCacheTTL
	}
	if c.AccessCacheBackend == "" {
		c.AccessCacheBackend = "memory"
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = DefaultRateLimitWindow
	}
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = DefaultRateLimitMax
	}
	if c.RateLimitBackend == "" {
		c.RateLimitBackend = "memory"
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.TypingInterval <= 0 {
		c.TypingInterval = DefaultTypingInterval
	}
}
