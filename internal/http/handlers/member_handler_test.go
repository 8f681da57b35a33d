package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/witchdelivery/sendy-backend/internal/auth"
	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/repo"
	"github.com/witchdelivery/sendy-backend/internal/services"
	"github.com/witchdelivery/sendy-backend/internal/storage"
)

// ---------- test plumbing ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handlers_%d.db", time.Now().UnixNano()))
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
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&domain.Member{}, &domain.Message{}, &domain.Outgoing{}, &domain.Receiving{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// handlerMemberRepo adapts the repo package's free functions to the
// services.MemberRepo interface, same as the router wiring does.
type handlerMemberRepo struct{}

func (handlerMemberRepo) CreateMember(ctx context.Context, db *gorm.DB, email, nickname, passwordHash string) (*domain.Member, error) {
	return repo.CreateMember(ctx, db, email, nickname, passwordHash)
}
func (handlerMemberRepo) GetMember(ctx context.Context, db *gorm.DB, id uint) (*domain.Member, error) {
	return repo.GetMember(ctx, db, id)
}
func (handlerMemberRepo) EmailExists(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	return repo.EmailExists(ctx, db, email)
}
func (handlerMemberRepo) NicknameExists(ctx context.Context, db *gorm.DB, nickname string) (bool, error) {
	return repo.NicknameExists(ctx, db, nickname)
}
func (handlerMemberRepo) CountMembers(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountMembers(ctx, db)
}
func (handlerMemberRepo) ListMembersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Member, error) {
	return repo.ListMembersPage(ctx, db, offset, limit)
}
func (handlerMemberRepo) UpdateMemberPassword(ctx context.Context, db *gorm.DB, id uint, passwordHash string) error {
	return repo.UpdateMemberPassword(ctx, db, id, passwordHash)
}
func (handlerMemberRepo) UpdateMemberNickname(ctx context.Context, db *gorm.DB, id uint, nickname string) error {
	return repo.UpdateMemberNickname(ctx, db, id, nickname)
}
func (handlerMemberRepo) UpdateMemberProfileImage(ctx context.Context, db *gorm.DB, id uint, key string) error {
	return repo.UpdateMemberProfileImage(ctx, db, id, key)
}
func (handlerMemberRepo) DeleteMember(ctx context.Context, db *gorm.DB, id uint) error {
	return repo.DeleteMember(ctx, db, id)
}

// newTestRouter wires real services over a temp DB and registers the same
// member/message/mailbox routes the production router does.
func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	store, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}

	memberSvc := services.NewMemberService(db, handlerMemberRepo{}, auth.NewBcryptHasher(bcrypt.MinCost), store)
	msgSvc := &services.MessageService{DB: db}
	mailboxSvc := &services.MailboxService{DB: db}
	h := New(memberSvc, msgSvc, mailboxSvc)

	r := gin.New()
	r.POST("/users/signup", h.Signup)
	r.POST("/users/verify/email", h.VerifyEmail)
	r.POST("/users/verify/nickname", h.VerifyNickname)
	r.GET("/users", h.ListMembers)
	r.GET("/users/:member-id", h.GetMember)
	r.PATCH("/users/edit/password/:member-id", h.PatchPassword)
	r.PATCH("/users/edit/nickname/:member-id", h.PatchNickname)
	r.POST("/users/edit/profile/:member-id", h.PostProfileImage)
	r.DELETE("/users/delete/:member-id", h.DeleteMember)

	r.POST("/messages", h.CreateMessage)
	r.GET("/messages", h.ListMessages)
	r.GET("/messages/:message-id", h.GetMessage)
	r.GET("/url/:url-name", h.GetMessageByUrlName)
	r.PATCH("/messages/saved/:message-id", h.MarkSaved)
	r.DELETE("/messages/delete/:message-id", h.DeleteMessage)

	r.GET("/mailbox/outgoing/:member-id", h.ListOutgoing)
	r.GET("/mailbox/receiving/:member-id", h.ListReceiving)

	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signupMember(t *testing.T, r *gin.Engine, email, nickname string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"nickname":%q,"password":"longenough"}`, email, nickname)
	w := doJSON(t, r, http.MethodPost, "/users/signup", body, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup %s -> %d: %s", email, w.Code, w.Body.String())
	}
}

// ---------- Signup / Verify ----------

func TestSignup_CreatedAndConflicts(t *testing.T) {
	r, _ := newTestRouter(t)

	signupMember(t, r, "kiki@x.com", "kiki")

	// malformed payload
	w := doJSON(t, r, http.MethodPost, "/users/signup", `{"email":"not-an-email","nickname":"n","password":"short"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad payload -> %d", w.Code)
	}

	// duplicate email
	w = doJSON(t, r, http.MethodPost, "/users/signup", `{"email":"kiki@x.com","nickname":"other","password":"longenough"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("dup email -> %d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != ErrCodeConflict {
		t.Fatalf("conflict envelope = %s (%v)", w.Body.String(), err)
	}

	// duplicate nickname
	w = doJSON(t, r, http.MethodPost, "/users/signup", `{"email":"new@x.com","nickname":"kiki","password":"longenough"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("dup nickname -> %d", w.Code)
	}
}

func TestVerifyEmailAndNickname(t *testing.T) {
	r, _ := newTestRouter(t)
	signupMember(t, r, "taken@x.com", "taken")

	w := doJSON(t, r, http.MethodPost, "/users/verify/email", `{"email":"free@x.com"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("free email -> %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/users/verify/email", `{"email":"taken@x.com"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("taken email -> %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/users/verify/email", `{"email":"nonsense"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid email -> %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/users/verify/nickname", `{"nickname":"someone"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("free nickname -> %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/users/verify/nickname", `{"nickname":"taken"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("taken nickname -> %d", w.Code)
	}
}

// ---------- Get / List ----------

func TestGetMember_OkNotFoundBadID(t *testing.T) {
	r, _ := newTestRouter(t)
	signupMember(t, r, "a@x.com", "a-nick")

	w := doJSON(t, r, http.MethodGet, "/users/1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get -> %d: %s", w.Code, w.Body.String())
	}
	var m MemberResponse
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil || m.Email != "a@x.com" {
		t.Fatalf("member body = %s (%v)", w.Body.String(), err)
	}

	if w := doJSON(t, r, http.MethodGet, "/users/999", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("absent -> %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/users/zero", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric -> %d", w.Code)
	}
}

func TestListMembers_PaginationAndETag(t *testing.T) {
	r, _ := newTestRouter(t)
	for i := 0; i < 3; i++ {
		signupMember(t, r, fmt.Sprintf("m%d@x.com", i), fmt.Sprintf("nick%d", i))
	}

	w := doJSON(t, r, http.MethodGet, "/users?page=1&size=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d: %s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag header")
	}
	var lr ListMembersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &lr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lr.Pagination.Total != 3 || len(lr.Members) != 2 || !lr.Pagination.HasNext {
		t.Fatalf("page = %+v", lr.Pagination)
	}

	// conditional revalidation
	w = doJSON(t, r, http.MethodGet, "/users?page=1&size=2", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("If-None-Match -> %d", w.Code)
	}

	// invalid paging is a client error
	if w := doJSON(t, r, http.MethodGet, "/users?page=0", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("page=0 -> %d", w.Code)
	}
}

// ---------- Patch / Upload / Delete ----------

func TestPatchPassword(t *testing.T) {
	r, db := newTestRouter(t)
	signupMember(t, r, "a@x.com", "a-nick")

	var before domain.Member
	if err := db.First(&before, 1).Error; err != nil {
		t.Fatalf("load member: %v", err)
	}

	w := doJSON(t, r, http.MethodPatch, "/users/edit/password/1", `{"password":"brand-new-pass"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("patch password -> %d: %s", w.Code, w.Body.String())
	}

	var after domain.Member
	if err := db.First(&after, 1).Error; err != nil {
		t.Fatalf("reload member: %v", err)
	}
	if after.Password == before.Password {
		t.Fatalf("password hash unchanged")
	}

	if w := doJSON(t, r, http.MethodPatch, "/users/edit/password/1", `{"password":"short"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("short password -> %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPatch, "/users/edit/password/999", `{"password":"brand-new-pass"}`, nil); w.Code != http.StatusNotFound {
		t.Fatalf("absent member -> %d", w.Code)
	}
}

func TestPatchNickname(t *testing.T) {
	r, _ := newTestRouter(t)
	signupMember(t, r, "a@x.com", "alpha")
	signupMember(t, r, "b@x.com", "beta")

	w := doJSON(t, r, http.MethodPatch, "/users/edit/nickname/1", `{"nickname":"gamma"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rename -> %d: %s", w.Code, w.Body.String())
	}
	var m MemberResponse
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil || m.Nickname != "gamma" {
		t.Fatalf("renamed body = %s (%v)", w.Body.String(), err)
	}

	if w := doJSON(t, r, http.MethodPatch, "/users/edit/nickname/1", `{"nickname":"beta"}`, nil); w.Code != http.StatusConflict {
		t.Fatalf("taken nickname -> %d", w.Code)
	}
}

func TestPostProfileImage(t *testing.T) {
	r, _ := newTestRouter(t)
	signupMember(t, r, "a@x.com", "a-nick")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "selfie.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write([]byte{0x89, 'P', 'N', 'G'}); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/users/edit/profile/1", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload -> %d: %s", w.Code, w.Body.String())
	}
	var m MemberResponse
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil || m.ProfileImage == "" {
		t.Fatalf("profile image body = %s (%v)", w.Body.String(), err)
	}

	// missing part
	if w := doJSON(t, r, http.MethodPost, "/users/edit/profile/1", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing part -> %d", w.Code)
	}
}

func TestDeleteMember(t *testing.T) {
	r, _ := newTestRouter(t)
	signupMember(t, r, "a@x.com", "a-nick")

	if w := doJSON(t, r, http.MethodDelete, "/users/delete/1", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete -> %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/users/delete/1", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete -> %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/users/1", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete -> %d", w.Code)
	}
}
