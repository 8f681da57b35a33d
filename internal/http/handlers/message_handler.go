// Message HTTP handlers.
//
// This file exposes REST endpoints for message resources:
//   - POST   /messages                (create; supports Idempotency-Key replays)
//   - GET    /messages                (list, newest first, ETag support)
//   - GET    /messages/{id}           (fetch one)
//   - GET    /url/{url-name}          (public share-link resolution)
//   - PATCH  /messages/saved/{id}     (mark saved, files a receiving record)
//   - DELETE /messages/delete/{id}    (remove)
//
// The acting member is identified by the X-Member-ID header (or by upstream
// auth middleware populating the "memberID" context key).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/http/middleware"
	"github.com/witchdelivery/sendy-backend/internal/repo"
	"github.com/witchdelivery/sendy-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// MessageServiceAPI defines message lifecycle operations consumed by HTTP
// handlers. Implementations should be safe for concurrent use and must honor
// the provided context for cancellation and timeouts.
type MessageServiceAPI interface {
	// Create persists a message plus its Outgoing record atomically.
	Create(ctx context.Context, in services.CreateMessageInput, memberID uint) (*domain.Message, error)
	// MarkSaved updates the saved flag and files a Receiving record.
	MarkSaved(ctx context.Context, messageID, memberID uint, saved bool) (*domain.Message, error)
	// ListPage returns a page of messages ordered by recency and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Message, int64, error)
	// Get returns a message by ID.
	Get(ctx context.Context, id uint) (*domain.Message, error)
	// GetByUrlName resolves a public slug.
	GetByUrlName(ctx context.Context, urlName string) (*domain.Message, error)
	// Delete removes a message by ID.
	Delete(ctx context.Context, id uint) error
}

// MailboxService lists a member's mailbox records.
type MailboxService interface {
	ListOutgoing(ctx context.Context, memberID uint, page, pageSize int) ([]domain.Outgoing, int64, error)
	ListReceiving(ctx context.Context, memberID uint, page, pageSize int) ([]domain.Receiving, int64, error)
}

//
// DTOs
//

// CreateMessageRequest is the JSON payload for creating a message.
type CreateMessageRequest struct {
	ThemeName        string `json:"theme_name"        binding:"required,min=1,max=64" example:"winter-letter"`
	ToName           string `json:"to_name"           binding:"required,min=1,max=64" example:"Jane"`
	OutgoingNickname string `json:"outgoing_nickname" binding:"required,min=1,max=64" example:"nick"`
	Content          string `json:"content"           binding:"required,min=1"`
}

// MarkSavedRequest is the JSON payload for filing a message into the
// recipient's mailbox. Saved defaults to true when the field is omitted.
type MarkSavedRequest struct {
	Saved *bool `json:"saved"`
}

// ListMessagesResponse wraps a page of messages and pagination information.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// memberID extracts the acting member from the Gin context (set by upstream
// auth middleware) or from the X-Member-ID header. A zero return means the
// request carried no usable identity.
func memberID(c *gin.Context) uint {
	if v, exists := c.Get("memberID"); exists {
		if id, isUint := v.(uint); isUint && id > 0 {
			return id
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Member-ID")); h != "" {
			if id, err := strconv.ParseUint(h, 10, 64); err == nil && id > 0 {
				return uint(id)
			}
		}
	}
	return 0
}

// requireMember writes a 401 and returns false when the request has no
// usable member identity.
func requireMember(c *gin.Context) (uint, bool) {
	id := memberID(c)
	if id == 0 {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-Member-ID header required")
		return 0, false
	}
	return id, true
}

//
// Handlers
//

// CreateMessage godoc
// @ID          createMessage
// @Summary     Create a message
// @Description Persists a gift note and files the sender's Outgoing mailbox record in one transaction. A replayed Idempotency-Key returns the originally created message.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-Member-ID      header  int     true  "Acting member ID"
// @Param       Idempotency-Key  header  string  false "Safe-retry key"
// @Param       body  body  handlers.CreateMessageRequest  true  "Message payload"
// @Success     201  {object} domain.Message
// @Success     200  {object} domain.Message "Idempotent replay"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing member identity"
// @Failure     404  {object} handlers.ErrorResponse "Author not found"
// @Router      /messages [post]
func (h *Handlers) CreateMessage(c *gin.Context) {
	ctx := c.Request.Context()
	mid, authed := requireMember(c)
	if !authed {
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid message payload")
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := idempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, mid, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(svc.DB, rec.MessageID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, prev)
					return
				}
			}
		}
	}

	msg, err := h.msgSvc.Create(ctx, services.CreateMessageInput{
		ThemeName:        req.ThemeName,
		ToName:           req.ToName,
		OutgoingNickname: req.OutgoingNickname,
		Content:          req.Content,
	}, mid)
	if err != nil {
		failService(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, mid, idemKey, msg.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, msg)
}

// idempotencyKey extracts an idempotency key if an upstream middleware has
// already validated/stashed it. Falls back to reading the Idempotency-Key
// header directly when no dedicated middleware ran.
func idempotencyKey(c *gin.Context) (string, bool) {
	if key, present := middleware.GetIdempotencyKey(c); present {
		return key, true
	}
	if v := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey)); v != "" {
		return v, true
	}
	return "", false
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages (paginated, newest first)
// @Description Returns a page of messages ordered by ID descending. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page  query  int  false "Page number (1-based)"  minimum(1) default(1)
// @Param       size  query  int  false "Items per page"          minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	page, size, valid := pagingParams(c)
	if !valid {
		return
	}

	// ETag pre-check (best effort).
	if svc, isConcrete := h.msgSvc.(*services.MessageService); isConcrete && svc.DB != nil {
		count, maxTS, err := repo.MessagesStats(ctx, svc.DB)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.msgSvc.ListPage(ctx, page, size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetMessage godoc
// @ID          getMessage
// @Summary     Fetch a message by ID
// @Tags        Messages
// @Produce     json
// @Param       id  path  int  true  "Message ID"
// @Success     200  {object} domain.Message
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id} [get]
func (h *Handlers) GetMessage(c *gin.Context) {
	id, valid := pathID(c, "message-id")
	if !valid {
		return
	}
	m, err := h.msgSvc.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// GetMessageByUrlName godoc
// @ID          getMessageByUrlName
// @Summary     Resolve a public share link
// @Tags        Messages
// @Produce     json
// @Param       url-name  path  string  true  "Message slug"
// @Success     200  {object} domain.Message
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /url/{url-name} [get]
func (h *Handlers) GetMessageByUrlName(c *gin.Context) {
	urlName := strings.TrimSpace(c.Param("url-name"))
	if urlName == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url-name required")
		return
	}
	m, err := h.msgSvc.GetByUrlName(c.Request.Context(), urlName)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// MarkSaved godoc
// @ID          markSaved
// @Summary     Mark a message as saved
// @Description Sets the saved flag and, when saved, files the message into the acting member's receiving mailbox.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-Member-ID  header  int  true  "Acting member ID"
// @Param       id    path  int  true  "Message ID"
// @Param       body  body  handlers.MarkSavedRequest  false "Saved flag (defaults to true)"
// @Success     200  {object} domain.Message
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing member identity"
// @Failure     404  {object} handlers.ErrorResponse "Message or member not found"
// @Failure     409  {object} handlers.ErrorResponse "Already saved by this member"
// @Router      /messages/saved/{id} [patch]
func (h *Handlers) MarkSaved(c *gin.Context) {
	id, valid := pathID(c, "message-id")
	if !valid {
		return
	}
	mid, authed := requireMember(c)
	if !authed {
		return
	}

	saved := true
	if c.Request.ContentLength > 0 {
		var req MarkSavedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid saved payload")
			return
		}
		if req.Saved != nil {
			saved = *req.Saved
		}
	}

	m, err := h.msgSvc.MarkSaved(c.Request.Context(), id, mid, saved)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a message
// @Tags        Messages
// @Produce     json
// @Param       id  path  int  true  "Message ID"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/delete/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	id, valid := pathID(c, "message-id")
	if !valid {
		return
	}
	if err := h.msgSvc.Delete(c.Request.Context(), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
