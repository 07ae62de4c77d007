package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiterConfig holds configuration for per-call rate limiting
type RateLimiterConfig struct {
	TurnsPerMinute  int           // Max voice turns per call per minute
	BurstSize       int           // Allow burst of N turns
	CleanupInterval time.Duration // How often to clean up old entries
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// CallRateLimiter manages rate limits per call session
type CallRateLimiter struct {
	config      RateLimiterConfig
	turnLimits  map[string]*TokenBucket
	mu          sync.RWMutex
	logger      *zap.Logger
	stopCleanup chan struct{}
}

// NewCallRateLimiter creates a new per-call rate limiter
func NewCallRateLimiter(config RateLimiterConfig, logger *zap.Logger) *CallRateLimiter {
	limiter := &CallRateLimiter{
		config:      config,
		turnLimits:  make(map[string]*TokenBucket),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go limiter.cleanupRoutine()

	return limiter
}

// cleanupRoutine periodically removes stale entries
func (crl *CallRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(crl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			crl.cleanup()
		case <-crl.stopCleanup:
			return
		}
	}
}

// cleanup removes rate limiters once the map grows past bounds. Ended
// calls stop sending requests, so a periodic reset is enough.
func (crl *CallRateLimiter) cleanup() {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	if len(crl.turnLimits) > 1000 {
		crl.logger.Info("Cleaning up rate limiter cache", zap.Int("turn_limiters", len(crl.turnLimits)))
		crl.turnLimits = make(map[string]*TokenBucket)
	}
}

// Stop stops the cleanup routine
func (crl *CallRateLimiter) Stop() {
	close(crl.stopCleanup)
}

// AllowTurn checks if a voice turn can proceed for the given call
func (crl *CallRateLimiter) AllowTurn(sessionID string) bool {
	crl.mu.Lock()
	bucket, exists := crl.turnLimits[sessionID]
	if !exists {
		refillRate := float64(crl.config.TurnsPerMinute) / 60.0
		bucket = NewTokenBucket(float64(crl.config.BurstSize), refillRate)
		crl.turnLimits[sessionID] = bucket
	}
	crl.mu.Unlock()

	return bucket.Allow()
}

// GetTurnLimit returns remaining turn tokens for a call
func (crl *CallRateLimiter) GetTurnLimit(sessionID string) (remaining int, limit int) {
	crl.mu.RLock()
	bucket, exists := crl.turnLimits[sessionID]
	crl.mu.RUnlock()

	if !exists {
		return crl.config.BurstSize, crl.config.BurstSize
	}
	return bucket.Remaining(), crl.config.BurstSize
}

// RateLimitMiddleware creates a Gin middleware limiting voice turns per
// call. The session ID comes from the request form or query string.
func RateLimitMiddleware(limiter *CallRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.PostForm("session_id")
		if sessionID == "" {
			sessionID = c.Query("session_id")
		}
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}

		allowed := limiter.AllowTurn(sessionID)
		remaining, limit := limiter.GetTurnLimit(sessionID)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			limiter.logger.Warn("Rate limit exceeded",
				zap.String("session_id", sessionID),
				zap.Int("limit", limit))

			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}
