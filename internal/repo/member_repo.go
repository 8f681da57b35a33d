// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Member model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a member is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated; the service layer maps unique
//     violations to conflict errors.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/witchdelivery/sendy-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateMember inserts a new member row. The password must already be hashed
// by the caller. On a unique violation (email or nickname) the raw DB error
// is returned for the service layer to classify.
func CreateMember(ctx context.Context, db *gorm.DB, email, nickname, passwordHash string) (*domain.Member, error) {
	m := &domain.Member{
		Email:    email,
		Nickname: nickname,
		Password: passwordHash,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMember fetches a member by ID, or ErrNotFound if missing.
func GetMember(ctx context.Context, db *gorm.DB, id uint) (*domain.Member, error) {
	var m domain.Member
	if err := db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// EmailExists reports whether any member row carries the given email.
func EmailExists(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("email = ?", email).
		Count(&n).Error
	return n > 0, err
}

// NicknameExists reports whether any member row carries the given nickname.
func NicknameExists(ctx context.Context, db *gorm.DB, nickname string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("nickname = ?", nickname).
		Count(&n).Error
	return n > 0, err
}

// CountMembers returns the total number of member rows.
func CountMembers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Member{}).Count(&total).Error
	return total, err
}

// ListMembersPage returns a paginated slice of members ordered by ID
// ascending (stable signup order). The caller computes offset and limit.
func ListMembersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Member, error) {
	var out []domain.Member
	err := db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateMemberPassword replaces the stored password hash for a member.
// Returns ErrNotFound when no row was touched.
func UpdateMemberPassword(ctx context.Context, db *gorm.DB, id uint, passwordHash string) error {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Update("password", passwordHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateMemberNickname updates a member's nickname. Unique violations are
// propagated raw; ErrNotFound when the member does not exist.
func UpdateMemberNickname(ctx context.Context, db *gorm.DB, id uint, nickname string) error {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Update("nickname", nickname)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateMemberProfileImage stores the object-store key of the uploaded
// profile picture on the member row.
func UpdateMemberProfileImage(ctx context.Context, db *gorm.DB, id uint, key string) error {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Update("profile_image", key)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMember removes a member row by ID. Returns ErrNotFound when the
// member does not exist, so deletes of absent IDs are reported rather than
// silently succeeding.
func DeleteMember(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Member{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
