package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/betdapp/socialbets-smartcontracts/internal/auth"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newLimiter(t *testing.T, rpm, burst int) (*Limiter, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(Config{RequestsPerMinute: rpm, BurstSize: burst, CleanupInterval: time.Hour})
	l.now = clk.now
	t.Cleanup(l.Stop)
	return l, clk
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l, clk := newLimiter(t, 60, 5)

	for i := range 5 {
		if !l.Allow("k") {
			t.Fatalf("request %d should be within burst", i)
		}
	}
	if l.Allow("k") {
		t.Fatal("request after burst should be denied")
	}

	clk.t = clk.t.Add(time.Second)
	if !l.Allow("k") {
		t.Fatal("one token should refill after a second at 60/min")
	}
	if l.Allow("k") {
		t.Fatal("only one token should have refilled")
	}
}

func TestAllow_RefillCappedAtBurst(t *testing.T) {
	l, clk := newLimiter(t, 60, 2)
	l.Allow("k")
	clk.t = clk.t.Add(time.Hour)

	allowed := 0
	for range 5 {
		if l.Allow("k") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed = %d, want 2", allowed)
	}
}

func TestAllow_KeysIndependent(t *testing.T) {
	l, _ := newLimiter(t, 60, 1)
	if !l.Allow("a") || !l.Allow("b") {
		t.Fatal("first request of each key should pass")
	}
	if l.Allow("a") {
		t.Fatal("a should be exhausted")
	}
}

func TestEvictIdle(t *testing.T) {
	l, clk := newLimiter(t, 60, 1)
	l.Allow("k")
	clk.t = clk.t.Add(3 * time.Minute)
	l.evictIdle()
	if len(l.buckets) != 0 {
		t.Fatalf("buckets = %d, want 0", len(l.buckets))
	}
}

func TestMiddleware_KeysByCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newLimiter(t, 60, 1)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if v := c.GetHeader("X-Test-Caller"); v != "" {
			c.Set(auth.ContextKeyCaller, common.HexToAddress(v))
		}
		c.Next()
	})
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(caller string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if caller != "" {
			req.Header.Set("X-Test-Caller", caller)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do(""); code != http.StatusOK {
		t.Fatalf("first anonymous request = %d", code)
	}
	if code := do(""); code != http.StatusTooManyRequests {
		t.Fatalf("second anonymous request = %d, want 429", code)
	}
	// same IP, but a signed caller has its own bucket
	if code := do("0x0000000000000000000000000000000000000b01"); code != http.StatusOK {
		t.Fatalf("signed request = %d", code)
	}
}
