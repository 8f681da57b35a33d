// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/witchdelivery/sendy-backend/internal/domain"
)

// CreateMessage inserts a new message row. The handle may be a plain DB or a
// transaction so message creation can share a transaction with the Outgoing
// derivation.
func CreateMessage(db *gorm.DB, m *domain.Message) error {
	return db.Create(m).Error
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByUrlName fetches a message by its public slug.
func GetMessageByUrlName(ctx context.Context, db *gorm.DB, urlName string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("url_name = ?", urlName).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// UrlNameExists reports whether a message with the given slug exists.
func UrlNameExists(ctx context.Context, db *gorm.DB, urlName string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("url_name = ?", urlName).
		Count(&n).Error
	return n > 0, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(db *gorm.DB) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages").Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered by ID descending.
// Newest-first is the product's recency feed and must not change.
func ListMessagesPage(db *gorm.DB, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateMessageSaved sets the saved flag on a message. Returns ErrNotFound
// when the message does not exist. RowsAffected is not consulted because
// writing the current value reports zero affected rows on some drivers.
func UpdateMessageSaved(db *gorm.DB, id uint, saved bool) error {
	var n int64
	if err := db.Model(&domain.Message{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return db.Model(&domain.Message{}).Where("id = ?", id).Update("message_saved", saved).Error
}

// DeleteMessage removes a message row by ID, or ErrNotFound when absent.
func DeleteMessage(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsNotFound reports whether err is the repo-level not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
