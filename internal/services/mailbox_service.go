// Package services – MailboxService
//
// Read side of the mailbox records. Rows are written exclusively by the
// message flows in MessageService; this service only verifies the owning
// member and pages through their outgoing and receiving mailboxes.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MailboxService lists a member's denormalized mailbox records.
type MailboxService struct {
	DB *gorm.DB
}

// ListOutgoing returns a page of messages the member sent, newest first.
func (s *MailboxService) ListOutgoing(ctx context.Context, memberID uint, page, pageSize int) ([]domain.Outgoing, int64, error) {
	tr := otel.Tracer("services/MailboxService")
	ctx, span := tr.Start(ctx, "ListOutgoing",
		trace.WithAttributes(
			attribute.Int("member.id", int(memberID)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	offset, pageSize := normalizePage(page, pageSize)

	if err := s.verifyMember(ctx, memberID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountOutgoing(ctx, s.DB, memberID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Outgoing{}, 0, nil
	}

	items, err := repo.ListOutgoingPage(ctx, s.DB, memberID, offset, pageSize)
	return items, total, err
}

// ListReceiving returns a page of messages the member saved, newest first.
func (s *MailboxService) ListReceiving(ctx context.Context, memberID uint, page, pageSize int) ([]domain.Receiving, int64, error) {
	tr := otel.Tracer("services/MailboxService")
	ctx, span := tr.Start(ctx, "ListReceiving",
		trace.WithAttributes(
			attribute.Int("member.id", int(memberID)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	offset, pageSize := normalizePage(page, pageSize)

	if err := s.verifyMember(ctx, memberID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountReceiving(ctx, s.DB, memberID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Receiving{}, 0, nil
	}

	items, err := repo.ListReceivingPage(ctx, s.DB, memberID, offset, pageSize)
	return items, total, err
}

// verifyMember translates a missing owner into ErrMemberNotFound.
func (s *MailboxService) verifyMember(ctx context.Context, memberID uint) error {
	if _, err := repo.GetMember(ctx, s.DB, memberID); err != nil {
		if repo.IsNotFound(err) {
			return ErrMemberNotFound
		}
		return err
	}
	return nil
}

// normalizePage applies the shared paging defaults and returns offset and size.
func normalizePage(page, pageSize int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}
