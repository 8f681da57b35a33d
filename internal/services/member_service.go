// Package services – MemberService
//
// This file implements the MemberService, which manages the lifecycle of
// member accounts. It enforces email/nickname uniqueness (advisory existence
// checks plus DB-level unique constraints as the real guard), funnels every
// mutation through a single "load verified member" primitive, hashes
// passwords via the injected auth.PasswordHasher, and stores profile images
// in the external object store.
//
// Service-level errors (e.g., ErrMemberNotFound, ErrEmailTaken) are returned
// for predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/witchdelivery/sendy-backend/internal/auth"
	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/storage"
)

// MemberRepo defines the repository contract required by MemberService.
// Implementations are responsible for persistence of member aggregates.
type MemberRepo interface {
	// CreateMember inserts a new member row with an already-hashed password.
	CreateMember(ctx context.Context, db *gorm.DB, email, nickname, passwordHash string) (*domain.Member, error)

	// GetMember fetches a member by ID.
	GetMember(ctx context.Context, db *gorm.DB, id uint) (*domain.Member, error)

	// EmailExists reports whether the email is already registered.
	EmailExists(ctx context.Context, db *gorm.DB, email string) (bool, error)

	// NicknameExists reports whether the nickname is already registered.
	NicknameExists(ctx context.Context, db *gorm.DB, nickname string) (bool, error)

	// CountMembers returns the total number of members for pagination.
	CountMembers(ctx context.Context, db *gorm.DB) (int64, error)

	// ListMembersPage returns a page of members ordered by ID ascending.
	ListMembersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Member, error)

	// UpdateMemberPassword replaces the stored password hash.
	UpdateMemberPassword(ctx context.Context, db *gorm.DB, id uint, passwordHash string) error

	// UpdateMemberNickname changes the display name.
	UpdateMemberNickname(ctx context.Context, db *gorm.DB, id uint, nickname string) error

	// UpdateMemberProfileImage stores the object-store key on the member row.
	UpdateMemberProfileImage(ctx context.Context, db *gorm.DB, id uint, key string) error

	// DeleteMember removes a member row.
	DeleteMember(ctx context.Context, db *gorm.DB, id uint) error
}

// MemberService provides member account operations: signup, lookup, paginated
// listing, credential and profile updates, and deletion.
type MemberService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the member repository used by this service.
	Repo MemberRepo
	// Hasher hashes passwords before they reach the repository.
	Hasher auth.PasswordHasher
	// Store holds profile images; an external collaborator.
	Store storage.ObjectStore
}

// NewMemberService constructs a MemberService over the given collaborators.
func NewMemberService(db *gorm.DB, r MemberRepo, h auth.PasswordHasher, st storage.ObjectStore) *MemberService {
	return &MemberService{DB: db, Repo: r, Hasher: h, Store: st}
}

// Create registers a new member. Email and nickname are normalized, checked
// for collisions, and the password is hashed before persistence. The DB-level
// unique indexes close the check-then-act window: a concurrent insert that
// slips past the existence checks still surfaces as ErrEmailTaken or
// ErrNicknameTaken via duplicate-key classification.
func (s *MemberService) Create(ctx context.Context, email, nickname, password string) (*domain.Member, error) {
	tr := otel.Tracer("services/MemberService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	nickname = strings.TrimSpace(nickname)

	if taken, err := s.Repo.EmailExists(ctx, s.DB, email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}
	if taken, err := s.Repo.NicknameExists(ctx, s.DB, nickname); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrNicknameTaken
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	m, err := s.Repo.CreateMember(ctx, s.DB, email, nickname, hash)
	if err != nil {
		if isDuplicate(err) {
			// Lost a concurrent race; report the column that collided.
			if strings.Contains(strings.ToLower(err.Error()), "nickname") {
				return nil, ErrNicknameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return m, nil
}

// Get returns the member or ErrMemberNotFound.
func (s *MemberService) Get(ctx context.Context, id uint) (*domain.Member, error) {
	tr := otel.Tracer("services/MemberService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.Int("member.id", int(id))),
	)
	defer span.End()

	return s.findVerified(ctx, id)
}

// ListPage returns a page of members ordered by ID ascending and the total
// count. It applies defaults for invalid page/pageSize.
func (s *MemberService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Member, int64, error) {
	tr := otel.Tracer("services/MemberService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountMembers(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Member{}, 0, nil
	}

	items, err := s.Repo.ListMembersPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// VerifyEmail reports whether the email is free to register.
func (s *MemberService) VerifyEmail(ctx context.Context, email string) (bool, error) {
	taken, err := s.Repo.EmailExists(ctx, s.DB, strings.ToLower(strings.TrimSpace(email)))
	return !taken, err
}

// VerifyNickname reports whether the nickname is free to register.
func (s *MemberService) VerifyNickname(ctx context.Context, nickname string) (bool, error) {
	taken, err := s.Repo.NicknameExists(ctx, s.DB, strings.TrimSpace(nickname))
	return !taken, err
}

// UpdatePassword hashes and stores a new password for an existing member.
func (s *MemberService) UpdatePassword(ctx context.Context, id uint, password string) (*domain.Member, error) {
	tr := otel.Tracer("services/MemberService")
	ctx, span := tr.Start(ctx, "UpdatePassword",
		trace.WithAttributes(attribute.Int("member.id", int(id))),
	)
	defer span.End()

	if _, err := s.findVerified(ctx, id); err != nil {
		return nil, err
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateMemberPassword(ctx, s.DB, id, hash); err != nil {
		return nil, s.classify(err)
	}
	return s.Repo.GetMember(ctx, s.DB, id)
}

// UpdateNickname changes a member's display name, guarding uniqueness.
func (s *MemberService) UpdateNickname(ctx context.Context, id uint, nickname string) (*domain.Member, error) {
	tr := otel.Tracer("services/MemberService")
	ctx, span := tr.Start(ctx, "UpdateNickname",
		trace.WithAttributes(attribute.Int("member.id", int(id))),
	)
	defer span.End()

	nickname = strings.TrimSpace(nickname)

	m, err := s.findVerified(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Nickname == nickname {
		return m, nil
	}
	if taken, err := s.Repo.NicknameExists(ctx, s.DB, nickname); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrNicknameTaken
	}
	if err := s.Repo.UpdateMemberNickname(ctx, s.DB, id, nickname); err != nil {
		if isDuplicate(err) {
			return nil, ErrNicknameTaken
		}
		return nil, s.classify(err)
	}
	return s.Repo.GetMember(ctx, s.DB, id)
}

// UpdateProfileImage uploads the image bytes to the object store and records
// the resulting key on the member. Upload failures map to ErrStorageFailure.
func (s *MemberService) UpdateProfileImage(ctx context.Context, id uint, filename string, data []byte) (*domain.Member, error) {
	tr := otel.Tracer("services/MemberService")
	ctx, span := tr.Start(ctx, "UpdateProfileImage",
		trace.WithAttributes(attribute.Int("member.id", int(id))),
	)
	defer span.End()

	if _, err := s.findVerified(ctx, id); err != nil {
		return nil, err
	}

	ext := path.Ext(filename)
	key := fmt.Sprintf("profiles/%d/%s%s", id, uuid.NewString(), ext)
	stored, err := s.Store.Put(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if err := s.Repo.UpdateMemberProfileImage(ctx, s.DB, id, stored); err != nil {
		return nil, s.classify(err)
	}
	return s.Repo.GetMember(ctx, s.DB, id)
}

// Delete removes a member account. Absent IDs report ErrMemberNotFound.
func (s *MemberService) Delete(ctx context.Context, id uint) error {
	tr := otel.Tracer("services/MemberService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.Int("member.id", int(id))),
	)
	defer span.End()

	if err := s.Repo.DeleteMember(ctx, s.DB, id); err != nil {
		return s.classify(err)
	}
	return nil
}

// findVerified loads the member or translates absence into ErrMemberNotFound.
// All mutating operations funnel through this single check.
func (s *MemberService) findVerified(ctx context.Context, id uint) (*domain.Member, error) {
	m, err := s.Repo.GetMember(ctx, s.DB, id)
	if err != nil {
		return nil, s.classify(err)
	}
	return m, nil
}

// classify maps gorm's not-found sentinel to the service-level error and
// passes everything else through.
func (s *MemberService) classify(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMemberNotFound
	}
	return err
}

// isDuplicate attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
