// Member HTTP handlers.
//
// This file exposes REST endpoints for member accounts:
//   - POST   /users/signup               (register)
//   - POST   /users/verify/email         (email availability)
//   - POST   /users/verify/nickname      (nickname availability)
//   - GET    /users/{id}                 (fetch one)
//   - GET    /users                      (list, paginated, ETag support)
//   - PATCH  /users/edit/password/{id}   (change password)
//   - PATCH  /users/edit/nickname/{id}   (change nickname)
//   - POST   /users/edit/profile/{id}    (upload profile image, multipart)
//   - DELETE /users/delete/{id}          (remove account)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/repo"
	"github.com/witchdelivery/sendy-backend/internal/services"
	"github.com/witchdelivery/sendy-backend/internal/utils"
)

// maxProfileImageBytes caps a single uploaded profile picture.
const maxProfileImageBytes = 5 << 20

//
// Service contracts (context-aware)
//

// MemberService defines member account operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MemberService interface {
	// Create registers a new member with a plaintext password.
	Create(ctx context.Context, email, nickname, password string) (*domain.Member, error)
	// Get returns the member by ID.
	Get(ctx context.Context, id uint) (*domain.Member, error)
	// ListPage returns a page of members and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Member, int64, error)
	// VerifyEmail reports whether the email is free to register.
	VerifyEmail(ctx context.Context, email string) (bool, error)
	// VerifyNickname reports whether the nickname is free to register.
	VerifyNickname(ctx context.Context, nickname string) (bool, error)
	// UpdatePassword replaces the member's password.
	UpdatePassword(ctx context.Context, id uint, password string) (*domain.Member, error)
	// UpdateNickname renames the member.
	UpdateNickname(ctx context.Context, id uint, nickname string) (*domain.Member, error)
	// UpdateProfileImage uploads the image and records its storage key.
	UpdateProfileImage(ctx context.Context, id uint, filename string, data []byte) (*domain.Member, error)
	// Delete removes the member account.
	Delete(ctx context.Context, id uint) error
}

//
// DTOs
//

// SignupRequest is the JSON payload for member registration.
type SignupRequest struct {
	Email    string `json:"email"    binding:"required,email" example:"a@x.com"`
	Nickname string `json:"nickname" binding:"required,min=2,max=64" example:"nick"`
	Password string `json:"password" binding:"required,min=8,max=72" example:"s3cret-pass"`
}

// VerifyEmailRequest asks whether an email is still available.
type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email" example:"a@x.com"`
}

// VerifyNicknameRequest asks whether a nickname is still available.
type VerifyNicknameRequest struct {
	Nickname string `json:"nickname" binding:"required,min=2,max=64" example:"nick"`
}

// PatchPasswordRequest is the JSON payload for a password change.
type PatchPasswordRequest struct {
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// PatchNicknameRequest is the JSON payload for a nickname change.
type PatchNicknameRequest struct {
	Nickname string `json:"nickname" binding:"required,min=2,max=64" example:"newnick"`
}

// MemberResponse is the public shape of a member; the password hash never
// leaves the domain model (tagged json:"-") but the DTO makes that explicit.
type MemberResponse struct {
	ID           uint   `json:"id"`
	Email        string `json:"email"`
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profile_image,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMembersResponse wraps a page of members and pagination information.
type ListMembersResponse struct {
	Members    []MemberResponse `json:"members"`
	Pagination Pagination       `json:"pagination"`
}

// toMemberResponse converts the domain model to its public DTO.
func toMemberResponse(m *domain.Member) MemberResponse {
	return MemberResponse{
		ID:           m.ID,
		Email:        m.Email,
		Nickname:     m.Nickname,
		ProfileImage: m.ProfileImage,
		CreatedAt:    m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

//
// Helpers
//

// pathID parses a positive numeric path parameter; ok is false after a 400
// has already been written.
func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// pagingParams reads ?page and ?size with 1-based external semantics.
// Missing params default to page 1, size 20; supplied non-positive values are
// a client error (400), matching the binding contract.
func pagingParams(c *gin.Context) (page, size int, ok bool) {
	const (
		defaultPage = 1
		defaultSize = 20
		maxSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	size = utils.AtoiDefault(c.Query("size"), defaultSize)
	if page < 1 || size < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "page and size must be positive")
		return 0, 0, false
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size, true
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for members, messages, and mailboxes.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	memberSvc  MemberService
	msgSvc     MessageServiceAPI
	mailboxSvc MailboxService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(memberSvc MemberService, msgSvc MessageServiceAPI, mailboxSvc MailboxService) *Handlers {
	return &Handlers{memberSvc: memberSvc, msgSvc: msgSvc, mailboxSvc: mailboxSvc}
}

//
// Handlers
//

// Signup godoc
// @ID          signup
// @Summary     Register a new member
// @Description Creates a member account. Email and nickname must be unique.
// @Tags        Members
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SignupRequest  true  "Signup payload"
// @Success     201  {string} string "Created"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Email or nickname taken"
// @Router      /users/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid signup payload")
		return
	}

	if _, err := h.memberSvc.Create(c.Request.Context(), req.Email, req.Nickname, req.Password); err != nil {
		failService(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// VerifyEmail godoc
// @ID          verifyEmail
// @Summary     Check email availability
// @Tags        Members
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.VerifyEmailRequest  true  "Email to check"
// @Success     200  {string} string "Available"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Already taken"
// @Router      /users/verify/email [post]
func (h *Handlers) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid email payload")
		return
	}
	free, err := h.memberSvc.VerifyEmail(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if !free {
		fail(c, http.StatusConflict, ErrCodeConflict, services.ErrEmailTaken.Error())
		return
	}
	c.Status(http.StatusOK)
}

// VerifyNickname godoc
// @ID          verifyNickname
// @Summary     Check nickname availability
// @Tags        Members
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.VerifyNicknameRequest  true  "Nickname to check"
// @Success     200  {string} string "Available"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Already taken"
// @Router      /users/verify/nickname [post]
func (h *Handlers) VerifyNickname(c *gin.Context) {
	var req VerifyNicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid nickname payload")
		return
	}
	free, err := h.memberSvc.VerifyNickname(c.Request.Context(), req.Nickname)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if !free {
		fail(c, http.StatusConflict, ErrCodeConflict, services.ErrNicknameTaken.Error())
		return
	}
	c.Status(http.StatusOK)
}

// GetMember godoc
// @ID          getMember
// @Summary     Fetch a member
// @Tags        Members
// @Produce     json
// @Param       id  path  int  true  "Member ID"
// @Success     200  {object} handlers.MemberResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Member not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetMember(c *gin.Context) {
	id, valid := pathID(c, "member-id")
	if !valid {
		return
	}
	m, err := h.memberSvc.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, toMemberResponse(m))
}

// ListMembers godoc
// @ID          listMembers
// @Summary     List members (paginated)
// @Description Returns a page of members. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Members
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page  query  int  false "Page number (1-based)"  minimum(1) default(1)
// @Param       size  query  int  false "Items per page"          minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListMembersResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users [get]
func (h *Handlers) ListMembers(c *gin.Context) {
	ctx := c.Request.Context()
	page, size, valid := pagingParams(c)
	if !valid {
		return
	}

	// ETag pre-check (best effort).
	if svc, isConcrete := h.memberSvc.(*services.MemberService); isConcrete && svc.DB != nil {
		count, maxTS, err := repo.MembersStats(ctx, svc.DB)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"members:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.memberSvc.ListPage(ctx, page, size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	members := make([]MemberResponse, 0, len(items))
	for i := range items {
		members = append(members, toMemberResponse(&items[i]))
	}
	totalPages := int((total + int64(size) - 1) / int64(size))
	ok(c, http.StatusOK, ListMembersResponse{
		Members: members,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// PatchPassword godoc
// @ID          patchPassword
// @Summary     Change a member's password
// @Tags        Members
// @Accept      json
// @Produce     json
// @Param       id    path  int  true  "Member ID"
// @Param       body  body  handlers.PatchPasswordRequest  true  "New password"
// @Success     200  {object} handlers.MemberResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Member not found"
// @Router      /users/edit/password/{id} [patch]
func (h *Handlers) PatchPassword(c *gin.Context) {
	id, valid := pathID(c, "member-id")
	if !valid {
		return
	}
	var req PatchPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "password required (8-72 chars)")
		return
	}
	m, err := h.memberSvc.UpdatePassword(c.Request.Context(), id, req.Password)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, toMemberResponse(m))
}

// PatchNickname godoc
// @ID          patchNickname
// @Summary     Change a member's nickname
// @Tags        Members
// @Accept      json
// @Produce     json
// @Param       id    path  int  true  "Member ID"
// @Param       body  body  handlers.PatchNicknameRequest  true  "New nickname"
// @Success     200  {object} handlers.MemberResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Member not found"
// @Failure     409  {object} handlers.ErrorResponse "Nickname taken"
// @Router      /users/edit/nickname/{id} [patch]
func (h *Handlers) PatchNickname(c *gin.Context) {
	id, valid := pathID(c, "member-id")
	if !valid {
		return
	}
	var req PatchNicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "nickname required (2-64 chars)")
		return
	}
	m, err := h.memberSvc.UpdateNickname(c.Request.Context(), id, req.Nickname)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, toMemberResponse(m))
}

// PostProfileImage godoc
// @ID          postProfileImage
// @Summary     Upload a member's profile image
// @Description Accepts a multipart form with an "image" file part and stores it in the object store.
// @Tags        Members
// @Accept      multipart/form-data
// @Produce     json
// @Param       id     path      int   true  "Member ID"
// @Param       image  formData  file  true  "Profile image"
// @Success     200  {object} handlers.MemberResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Member not found"
// @Failure     502  {object} handlers.ErrorResponse "Object storage failure"
// @Router      /users/edit/profile/{id} [post]
func (h *Handlers) PostProfileImage(c *gin.Context) {
	id, valid := pathID(c, "member-id")
	if !valid {
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `multipart "image" file required`)
		return
	}
	if fh.Size > maxProfileImageBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image exceeds 5 MiB")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxProfileImageBytes+1))
	if err != nil || int64(len(data)) > maxProfileImageBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image upload")
		return
	}

	m, err := h.memberSvc.UpdateProfileImage(c.Request.Context(), id, fh.Filename, data)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, toMemberResponse(m))
}

// DeleteMember godoc
// @ID          deleteMember
// @Summary     Delete a member account
// @Tags        Members
// @Produce     json
// @Param       id  path  int  true  "Member ID"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Member not found"
// @Router      /users/delete/{id} [delete]
func (h *Handlers) DeleteMember(c *gin.Context) {
	id, valid := pathID(c, "member-id")
	if !valid {
		return
	}
	if err := h.memberSvc.Delete(c.Request.Context(), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
