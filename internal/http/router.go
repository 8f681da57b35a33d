// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/witchdelivery/sendy-backend/internal/auth"
	"github.com/witchdelivery/sendy-backend/internal/config"
	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/http/handlers"
	"github.com/witchdelivery/sendy-backend/internal/http/middleware"
	"github.com/witchdelivery/sendy-backend/internal/repo"
	"github.com/witchdelivery/sendy-backend/internal/services"
	"github.com/witchdelivery/sendy-backend/internal/storage"
)

// memberRepoShim adapts the repository free functions to the
// services.MemberRepo interface expected by the MemberService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type memberRepoShim struct{}

// CreateMember proxies repo.CreateMember.
func (memberRepoShim) CreateMember(ctx context.Context, db *gorm.DB, email, nickname, passwordHash string) (*domain.Member, error) {
	return repo.CreateMember(ctx, db, email, nickname, passwordHash)
}

// GetMember proxies repo.GetMember.
func (memberRepoShim) GetMember(ctx context.Context, db *gorm.DB, id uint) (*domain.Member, error) {
	return repo.GetMember(ctx, db, id)
}

// EmailExists proxies repo.EmailExists.
func (memberRepoShim) EmailExists(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	return repo.EmailExists(ctx, db, email)
}

// NicknameExists proxies repo.NicknameExists.
func (memberRepoShim) NicknameExists(ctx context.Context, db *gorm.DB, nickname string) (bool, error) {
	return repo.NicknameExists(ctx, db, nickname)
}

// CountMembers proxies repo.CountMembers (pagination support).
func (memberRepoShim) CountMembers(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountMembers(ctx, db)
}

// ListMembersPage proxies repo.ListMembersPage (pagination support).
func (memberRepoShim) ListMembersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Member, error) {
	return repo.ListMembersPage(ctx, db, offset, limit)
}

// UpdateMemberPassword proxies repo.UpdateMemberPassword.
func (memberRepoShim) UpdateMemberPassword(ctx context.Context, db *gorm.DB, id uint, passwordHash string) error {
	return repo.UpdateMemberPassword(ctx, db, id, passwordHash)
}

// UpdateMemberNickname proxies repo.UpdateMemberNickname.
func (memberRepoShim) UpdateMemberNickname(ctx context.Context, db *gorm.DB, id uint, nickname string) error {
	return repo.UpdateMemberNickname(ctx, db, id, nickname)
}

// UpdateMemberProfileImage proxies repo.UpdateMemberProfileImage.
func (memberRepoShim) UpdateMemberProfileImage(ctx context.Context, db *gorm.DB, id uint, key string) error {
	return repo.UpdateMemberProfileImage(ctx, db, id, key)
}

// DeleteMember proxies repo.DeleteMember.
func (memberRepoShim) DeleteMember(ctx context.Context, db *gorm.DB, id uint) error {
	return repo.DeleteMember(ctx, db, id)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the public API under the configured base path.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip response compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per member/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store storage.ObjectStore, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key", // project-specific sensitive header example
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (6 MiB: JSON payloads plus profile uploads)
	r.Use(limitBody(6 << 20))

	// 6) Response compression (profile image keys and note listings gzip well)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, memberID uint, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, memberID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per member/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByMemberOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Member-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Member-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/store
	memberSvc := services.NewMemberService(db, memberRepoShim{}, auth.NewBcryptHasher(cfg.BcryptCost), store)
	msgSvc := &services.MessageService{DB: db}
	mailboxSvc := &services.MailboxService{DB: db}
	h := handlers.New(memberSvc, msgSvc, mailboxSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/sendy"
	api := groupWithPrefix(r, apiBase)
	{
		// Members
		api.POST("/users/signup", h.Signup)
		api.POST("/users/verify/email", h.VerifyEmail)
		api.POST("/users/verify/nickname", h.VerifyNickname)
		api.GET("/users", h.ListMembers)
		api.GET("/users/:member-id", h.GetMember)
		api.PATCH("/users/edit/password/:member-id", h.PatchPassword)
		api.PATCH("/users/edit/nickname/:member-id", h.PatchNickname)
		api.POST("/users/edit/profile/:member-id", h.PostProfileImage)
		api.DELETE("/users/delete/:member-id", h.DeleteMember)

		// Messages
		api.POST("/messages", h.CreateMessage)
		api.GET("/messages", h.ListMessages)
		api.GET("/messages/:message-id", h.GetMessage)
		api.PATCH("/messages/saved/:message-id", h.MarkSaved)
		api.DELETE("/messages/delete/:message-id", h.DeleteMessage)

		// Public share-link resolution (kept outside /messages: a static
		// "url" segment cannot coexist with the :message-id wildcard)
		api.GET("/url/:url-name", h.GetMessageByUrlName)

		// Mailboxes
		api.GET("/mailbox/outgoing/:member-id", h.ListOutgoing)
		api.GET("/mailbox/receiving/:member-id", h.ListReceiving)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
