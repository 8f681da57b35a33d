package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/witchdelivery/sendy-backend/internal/config"
	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/http/middleware"
	"github.com/witchdelivery/sendy-backend/internal/storage"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newRouterDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("router_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	// schema so handlers don't explode on list endpoints
	if err := db.AutoMigrate(
		&domain.Member{}, &domain.Message{}, &domain.Outgoing{}, &domain.Receiving{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newRouterStore(t *testing.T) storage.ObjectStore {
	t.Helper()
	st, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	return st
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := config.Config{
		APIBasePath: "/sendy",
		RateRPS:     100,
		RateBurst:   10,
		BcryptCost:  4,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
	db := newRouterDB(t)

	RegisterRoutes(r, db, newRouterStore(t), cfg)

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// the public API is mounted under the base path
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sendy/users", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /sendy/users = %d: %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := config.Config{
		APIBasePath: "/sendy",
		RateRPS:     50,
		RateBurst:   5,
		BcryptCost:  4,
		CORS:        config.CORSConfig{AllowedOrigins: []string{"http://example.com"}},
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
	db := newRouterDB(t)

	RegisterRoutes(r, db, newRouterStore(t), cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/one", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "one" {
		t.Fatalf("GET /one got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/two", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "two" {
		t.Fatalf("GET /two got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("GET /api/ping got %d %q", rec.Code, rec.Body.String())
	}
}

// Smoke test that a request traverses idempotency + ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := config.Config{
		APIBasePath: "/sendy",
		RateRPS:     100,
		RateBurst:   10,
		BcryptCost:  4,
		CORS:        config.CORSConfig{},                                            // allow-all branch
		Security:    config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}, // enabled (but only set on https)
		OTEL:        config.OTELConfig{ServiceName: "svc"},
	}
	db := newRouterDB(t)
	RegisterRoutes(r, db, newRouterStore(t), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func Test_memberRepoShim_Proxies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newRouterDB(t)

	shim := memberRepoShim{}
	ctx := context.Background()

	m1, err := shim.CreateMember(ctx, db, "u1@x.com", "nick1", "hash")
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	if m1 == nil || m1.ID == 0 || m1.Email != "u1@x.com" {
		t.Fatalf("CreateMember returned bad member: %+v", m1)
	}

	got, err := shim.GetMember(ctx, db, m1.ID)
	if err != nil || got.Nickname != "nick1" {
		t.Fatalf("GetMember: %+v, %v", got, err)
	}

	if taken, err := shim.EmailExists(ctx, db, "u1@x.com"); err != nil || !taken {
		t.Fatalf("EmailExists: %v, %v", taken, err)
	}
	if taken, err := shim.NicknameExists(ctx, db, "nick1"); err != nil || !taken {
		t.Fatalf("NicknameExists: %v, %v", taken, err)
	}

	// Seed a few more for pagination
	if _, err := shim.CreateMember(ctx, db, "u2@x.com", "nick2", "hash"); err != nil {
		t.Fatalf("CreateMember u2: %v", err)
	}
	if _, err := shim.CreateMember(ctx, db, "u3@x.com", "nick3", "hash"); err != nil {
		t.Fatalf("CreateMember u3: %v", err)
	}

	n, err := shim.CountMembers(ctx, db)
	if err != nil || n != 3 {
		t.Fatalf("CountMembers = %d, %v", n, err)
	}
	page, err := shim.ListMembersPage(ctx, db, 0, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("ListMembersPage = %d, %v", len(page), err)
	}

	if err := shim.UpdateMemberPassword(ctx, db, m1.ID, "hash2"); err != nil {
		t.Fatalf("UpdateMemberPassword: %v", err)
	}
	if err := shim.UpdateMemberNickname(ctx, db, m1.ID, "renamed"); err != nil {
		t.Fatalf("UpdateMemberNickname: %v", err)
	}
	if err := shim.UpdateMemberProfileImage(ctx, db, m1.ID, "profiles/1/a.png"); err != nil {
		t.Fatalf("UpdateMemberProfileImage: %v", err)
	}
	got2, err := shim.GetMember(ctx, db, m1.ID)
	if err != nil || got2.Nickname != "renamed" || got2.ProfileImage != "profiles/1/a.png" {
		t.Fatalf("post-update member: %+v, %v", got2, err)
	}

	if err := shim.DeleteMember(ctx, db, m1.ID); err != nil {
		t.Fatalf("DeleteMember: %v", err)
	}
	if _, err := shim.GetMember(ctx, db, m1.ID); err == nil {
		t.Fatalf("GetMember after delete should fail")
	}
}

func TestRegisterRoutes_IdempotencyCallback_MissAndHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := config.Config{
		APIBasePath: "/sendy",
		RateRPS:     100,
		RateBurst:   10,
		BcryptCost:  4,
		CORS:        config.CORSConfig{}, // allow-all branch
		Security:    config.SecurityConfig{EnableHSTS: false},
		OTEL:        config.OTELConfig{ServiceName: "svc"},
	}
	db := newRouterDB(t)
	RegisterRoutes(r, db, newRouterStore(t), cfg)

	const key = "key-hit"

	// --- MISS: record does not exist ---
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set("X-Member-ID", "1")
	req.Header.Set(middleware.HeaderIdempotencyKey, key)
	r.ServeHTTP(w, req)
	// NoMethod is expected for POST /health, but middleware ran.

	// --- seed an idempotency record so the callback returns non-nil ---
	seed := &domain.Idempotency{
		ID:        "idem-seed-1",
		MemberID:  1,
		Key:       key,
		MessageID: 7,
		Status:    201,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(seed).Error; err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	// --- HIT: record exists ---
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set("X-Member-ID", "1")
	req.Header.Set(middleware.HeaderIdempotencyKey, key)
	r.ServeHTTP(w, req)
	// again, 405 is fine; goal is to drive the middleware branch.
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
