package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
)

// deviceWindow counts one device's requests in the current minute
type deviceWindow struct {
	mu        sync.Mutex
	count     int
	lastReset time.Time
}

// DeviceRateLimiter is a fixed one-minute window limiter keyed by device identity
type DeviceRateLimiter struct {
	limit     int
	windows   sync.Map
	now       func() time.Time
	lastPrune time.Time
	pruneMu   sync.Mutex
}

// NewDeviceRateLimiter creates a limiter. A non-positive limit defaults to
// one request per second.
func NewDeviceRateLimiter(requestsPerMinute int) *DeviceRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &DeviceRateLimiter{limit: requestsPerMinute, now: time.Now, lastPrune: time.Now()}
}

// Allow records a request for key. When the window is exhausted it returns
// false and the seconds until the window resets.
func (l *DeviceRateLimiter) Allow(key string) (bool, int) {
	now := l.now()
	l.prune(now)

	value, _ := l.windows.LoadOrStore(key, &deviceWindow{lastReset: now})
	window := value.(*deviceWindow)
	window.mu.Lock()
	defer window.mu.Unlock()

	if now.Sub(window.lastReset) >= time.Minute {
		window.count = 0
		window.lastReset = now
	}
	if window.count >= l.limit {
		retryAfter := 60 - int(now.Sub(window.lastReset).Seconds())
		return false, max(retryAfter, 1)
	}
	window.count++
	return true, 0
}

// prune drops windows idle for 30 minutes, at most every 10 minutes
func (l *DeviceRateLimiter) prune(now time.Time) {
	l.pruneMu.Lock()
	if now.Sub(l.lastPrune) < 10*time.Minute {
		l.pruneMu.Unlock()
		return
	}
	l.lastPrune = now
	l.pruneMu.Unlock()

	l.windows.Range(func(key, value interface{}) bool {
		window := value.(*deviceWindow)
		window.mu.Lock()
		idle := now.Sub(window.lastReset) > 30*time.Minute
		window.mu.Unlock()
		if idle {
			l.windows.Delete(key)
		}
		return true
	})
}

// DeviceRateLimit throttles requests per device_uuid found in the JSON body.
// The body is cached so handlers can bind it again with ShouldBindBodyWith.
// Requests without a device_uuid pass through to the handler's validation.
func DeviceRateLimit(limiter *DeviceRateLimiter, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var identity struct {
			DeviceUUID string `json:"device_uuid"`
		}
		if err := c.ShouldBindBodyWith(&identity, binding.JSON); err != nil || identity.DeviceUUID == "" {
			c.Next()
			return
		}

		allowed, retryAfter := limiter.Allow(identity.DeviceUUID)
		if !allowed {
			log.WithFields(logrus.Fields{
				"device_uuid":      identity.DeviceUUID,
				"requests_per_min": limiter.limit,
				"retry_after_secs": retryAfter,
				"request_id":       GetRequestID(c),
			}).Warn("Rate limit exceeded for device")

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":         false,
				"error":           "rate limit exceeded",
				"code":            "rate_limited",
				"retry_after_sec": retryAfter,
			})
			return
		}
		c.Next()
	}
}
