// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the mailbox
// records (Outgoing / Receiving). Both are insert-only denormalizations:
// they are created by the message flows and never independently mutated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/witchdelivery/sendy-backend/internal/domain"
)

// CreateOutgoing inserts a sender-side mailbox row. The handle is expected to
// be the transaction that also created the source message.
func CreateOutgoing(db *gorm.DB, o *domain.Outgoing) error {
	return db.Create(o).Error
}

// CreateReceiving inserts a recipient-side mailbox row. A unique violation on
// (message_id, member_id) means this member already saved the message; the
// raw error is propagated for the service layer to classify.
func CreateReceiving(db *gorm.DB, r *domain.Receiving) error {
	return db.Create(r).Error
}

// CountOutgoing returns the number of outgoing records owned by a member.
func CountOutgoing(ctx context.Context, db *gorm.DB, memberID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Outgoing{}).
		Where("member_id = ?", memberID).
		Count(&total).Error
	return total, err
}

// ListOutgoingPage returns a page of a member's outgoing records, newest
// first (ID descending, mirroring the message feed ordering).
func ListOutgoingPage(ctx context.Context, db *gorm.DB, memberID uint, offset, limit int) ([]domain.Outgoing, error) {
	var out []domain.Outgoing
	err := db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountReceiving returns the number of receiving records owned by a member.
func CountReceiving(ctx context.Context, db *gorm.DB, memberID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Receiving{}).
		Where("member_id = ?", memberID).
		Count(&total).Error
	return total, err
}

// ListReceivingPage returns a page of a member's receiving records, newest first.
func ListReceivingPage(ctx context.Context, db *gorm.DB, memberID uint, offset, limit int) ([]domain.Receiving, error) {
	var out []domain.Receiving
	err := db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
