package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestLimiter(t *testing.T, max int, per time.Duration, key KeyFunc) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(max, per, key)
	t.Cleanup(rl.Close)
	return rl
}

func TestRateLimiterWithinLimit(t *testing.T) {
	rl := newTestLimiter(t, 5, 1*time.Minute, nil)
	for i := 0; i < 5; i++ {
		if ok, _ := rl.allow("1.2.3.4"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiterOverLimit(t *testing.T) {
	rl := newTestLimiter(t, 2, 1*time.Minute, nil)
	rl.allow("1.2.3.4") // 1
	rl.allow("1.2.3.4") // 2
	ok, wait := rl.allow("1.2.3.4")
	if ok {
		t.Fatal("should be rate limited")
	}
	if wait <= 0 || wait > 30*time.Second {
		t.Fatalf("expected a wait of at most 30s, got %v", wait)
	}
}

func TestRateLimiterTokenRefill(t *testing.T) {
	rl := newTestLimiter(t, 1, 1*time.Second, nil)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.allow("1.2.3.4")
	if ok, _ := rl.allow("1.2.3.4"); ok {
		t.Fatal("should be rate limited immediately")
	}
	now = now.Add(1100 * time.Millisecond)
	if ok, _ := rl.allow("1.2.3.4"); !ok {
		t.Fatal("token should have refilled")
	}
}

func TestRateLimiterDifferentKeys(t *testing.T) {
	rl := newTestLimiter(t, 1, 1*time.Minute, nil)
	rl.allow("1.1.1.1")
	if ok, _ := rl.allow("2.2.2.2"); !ok {
		t.Fatal("different IP should have its own bucket")
	}
}

func TestRateLimiterSweepDropsIdleKeys(t *testing.T) {
	rl := newTestLimiter(t, 1, 1*time.Minute, nil)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.allow("1.1.1.1")
	now = now.Add(11 * time.Minute)
	rl.sweep(10 * time.Minute)

	rl.mu.Lock()
	n := len(rl.clients)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected idle bucket to be dropped, %d left", n)
	}
}

func TestRateLimiterMiddleware429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newTestLimiter(t, 1, 1*time.Minute, nil)

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest("GET", "/test", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/test", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if w2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiterPerRouteBuckets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newTestLimiter(t, 1, 1*time.Minute, ByRouteAndIP)

	r := gin.New()
	r.Use(rl.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/api/orders/:id/status", ok)
	r.POST("/api/payments/mvola/callback", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orders/1/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// A different order id shares the route bucket.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orders/2/status", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/payments/mvola/callback", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("webhook should have its own bucket, got %d", w.Code)
	}
}
