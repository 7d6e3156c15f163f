package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	callers map[string]model.Caller
	err     error
}

func (s stubValidator) ValidateToken(tokenStr string) (model.Caller, error) {
	if s.err != nil {
		return model.Caller{}, s.err
	}
	caller, ok := s.callers[tokenStr]
	if !ok {
		return model.Caller{}, errors.New("unknown token")
	}
	return caller, nil
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func TestRequireAuthAndRole(t *testing.T) {
	student := model.Caller{ID: uuid.New(), Role: model.RoleStudent}
	admin := model.Caller{ID: uuid.New(), Role: model.RoleAdmin}
	v := stubValidator{callers: map[string]model.Caller{"s": student, "a": admin}}

	r := gin.New()
	r.GET("/admin", RequireAuth(v), RequireRole(model.RoleAdmin), func(c *gin.Context) {
		caller, _ := GetCaller(c)
		c.String(http.StatusOK, caller.ID.String())
	})
	r.GET("/ws", RequireWSAuth(v), RequireRole(model.RoleStudent), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantErr  response.ErrCode
	}{
		{"no token", "/admin", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"bad token", "/admin", "Bearer nope", http.StatusUnauthorized, response.ErrTokenInvalid},
		{"student on admin route", "/admin", "Bearer s", http.StatusForbidden, response.ErrAdminAccessOnly},
		{"admin header", "/admin", "bearer a", http.StatusOK, ""},
		{"admin query fallback", "/admin?token=a", "", http.StatusOK, ""},
		{"ws ignores header", "/ws", "Bearer s", http.StatusUnauthorized, response.ErrTokenRequired},
		{"ws admin rejected", "/ws?token=a", "", http.StatusForbidden, response.ErrStudentAccessOnly},
		{"ws student", "/ws?token=s", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantErr != "" && errorCode(t, w) != tt.wantErr {
				t.Errorf("expected %s, got %s", tt.wantErr, errorCode(t, w))
			}
		})
	}
}

func TestRequireAuthExpiredToken(t *testing.T) {
	v := stubValidator{err: fmt.Errorf("invalid token: %w", jwt.ErrTokenExpired)}
	r := gin.New()
	r.GET("/x", RequireAuth(v), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer old")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized || errorCode(t, w) != response.ErrTokenExpired {
		t.Fatalf("expected 401 TOKEN_EXPIRED, got %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimiterRefills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, 2, time.Minute, ByIP)
	rl.now = func() time.Time { return now }

	if !rl.Allow("k") || !rl.Allow("k") {
		t.Fatalf("expected first two requests allowed")
	}
	if rl.Allow("k") {
		t.Fatalf("expected third request rejected")
	}
	if !rl.Allow("other") {
		t.Errorf("expected separate bucket per key")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("k") {
		t.Errorf("expected bucket refilled after interval")
	}
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	// floor is added to every count, to simulate earlier calls in the same window.
	floor int64
	err   error
}

func (m *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[key]++
	return m.counts[key] + m.floor, nil
}

func autosaveRouter(counter WindowCounter, limit int, caller model.Caller) *gin.Engine {
	r := gin.New()
	r.PUT("/session", func(c *gin.Context) {
		c.Set(ContextKeyCaller, caller)
		c.Next()
	}, AutosaveLimit(counter, limit, zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func put(r http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/session", nil))
	return w
}

func TestAutosaveLimit(t *testing.T) {
	caller := model.Caller{ID: uuid.New(), Role: model.RoleStudent}
	counter := &memCounter{}
	r := autosaveRouter(counter, 2, caller)

	for i := 0; i < 2; i++ {
		if w := put(r); w.Code != http.StatusNoContent {
			t.Fatalf("call %d: expected 204, got %d", i, w.Code)
		}
	}

	counter.mu.Lock()
	for k := range counter.counts {
		if !strings.HasPrefix(k, "student:"+caller.ID.String()+":autosave_rate:") {
			t.Errorf("unexpected rate key %q", k)
		}
	}
	counter.floor = 2
	counter.mu.Unlock()

	w := put(r)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if errorCode(t, w) != response.ErrRateLimitExceeded {
		t.Errorf("expected RATE_LIMIT_EXCEEDED")
	}
	if w.Header().Get("Retry-After") == "" {
		t.Errorf("expected Retry-After header")
	}
}

func TestAutosaveLimitFailsOpen(t *testing.T) {
	caller := model.Caller{ID: uuid.New(), Role: model.RoleStudent}
	r := autosaveRouter(&memCounter{err: errors.New("redis down")}, 1, caller)

	for i := 0; i < 3; i++ {
		if w := put(r); w.Code != http.StatusNoContent {
			t.Fatalf("expected requests allowed when counter fails, got %d", w.Code)
		}
	}
}

func TestAutosaveLimitDisabled(t *testing.T) {
	caller := model.Caller{ID: uuid.New(), Role: model.RoleStudent}
	counter := &memCounter{}
	r := autosaveRouter(counter, 0, caller)

	for i := 0; i < 5; i++ {
		put(r)
	}
	if len(counter.counts) != 0 {
		t.Errorf("expected disabled limiter not to touch the counter")
	}
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("exstem ", 400)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	t.Run("large body compressed", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/large", nil)
		req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
		r.ServeHTTP(w, req)

		if got := w.Header().Get("Content-Encoding"); got != "br" {
			t.Fatalf("expected br encoding, got %q", got)
		}
		body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if string(body) != large {
			t.Errorf("decompressed body mismatch")
		}
	})

	t.Run("small body untouched", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/small", nil)
		req.Header.Set("Accept-Encoding", "br")
		r.ServeHTTP(w, req)

		if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "ok" {
			t.Errorf("expected plain small body, got %q %q", w.Header().Get("Content-Encoding"), w.Body.String())
		}
	})

	t.Run("client without br", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/large", nil))

		if w.Header().Get("Content-Encoding") != "" || w.Body.String() != large {
			t.Errorf("expected uncompressed body")
		}
	})
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/x", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("expected no-store, got %q", got)
	}
}
