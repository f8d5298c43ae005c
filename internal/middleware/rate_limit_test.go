package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitRouter(t *testing.T, limit RateLimit) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", NewRateLimiter(client).Limit(limit), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, mr
}

func get(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	r, _ := newRateLimitRouter(t, RateLimit{Requests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		w := get(r)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := get(r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitResetsAfterWindow(t *testing.T) {
	r, mr := newRateLimitRouter(t, RateLimit{Requests: 1, Window: time.Minute})

	require.Equal(t, http.StatusOK, get(r).Code)
	require.Equal(t, http.StatusTooManyRequests, get(r).Code)

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusOK, get(r).Code)
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", NewRateLimiter(client).Limit(RateLimit{Requests: 1, Window: time.Minute}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, get(r).Code)
	assert.Equal(t, http.StatusOK, get(r).Code)
}
