// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of gift-note messages and their derived mailbox records.
// Message creation persists the message and its Outgoing record in one
// transaction; marking a message saved re-persists the flag and files a
// Receiving record the same way. A failure anywhere in either sequence rolls
// the whole operation back, so a message can never exist without its outgoing
// record and a saved flag can never flip without its receiving record.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// message/member identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// PreviewMaxRunes caps the mailbox preview length, counted in Unicode
	// code points so multi-byte characters are never split.
	PreviewMaxRunes = 70

	// slug generation bounds
	slugSuffixLen   = 6
	maxSlugAttempts = 5
)

// MessageService coordinates message persistence and mailbox derivation.
type MessageService struct {
	DB *gorm.DB
}

// CreateMessageInput carries the sender-supplied fields of a new message.
type CreateMessageInput struct {
	ThemeName        string
	ToName           string
	OutgoingNickname string
	Content          string
}

// Create persists a new message authored by memberID and derives its Outgoing
// mailbox record. Slug generation, author verification, the message insert,
// and the mailbox insert all run inside one transaction; if the author does
// not exist the message write is rolled back rather than left orphaned.
func (s *MessageService) Create(ctx context.Context, in CreateMessageInput, memberID uint) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.Int("member.id", int(memberID))),
	)
	defer span.End()

	var msg *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := repo.GetMember(ctx, tx, memberID)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrMemberNotFound
			}
			return err
		}

		urlName, err := s.newUrlName(ctx, tx, in.ToName)
		if err != nil {
			return err
		}

		m := &domain.Message{
			UrlName:          urlName,
			ThemeName:        strings.TrimSpace(in.ThemeName),
			ToName:           strings.TrimSpace(in.ToName),
			OutgoingNickname: strings.TrimSpace(in.OutgoingNickname),
			Content:          in.Content,
		}
		if err := repo.CreateMessage(tx, m); err != nil {
			return err
		}

		o := &domain.Outgoing{
			MemberID:         member.ID,
			MessageID:        m.ID,
			UrlName:          m.UrlName,
			ThemeName:        m.ThemeName,
			ToName:           m.ToName,
			Content:          PreviewContent(m.Content),
			MessageCreatedAt: m.CreatedAt,
		}
		if err := repo.CreateOutgoing(tx, o); err != nil {
			return err
		}

		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkSaved sets the message's saved flag as supplied by the caller and, when
// saved is true, files a Receiving record for the saving member. Flag update
// and mailbox insert share one transaction. Saving the same message twice for
// the same member yields ErrAlreadySaved.
func (s *MessageService) MarkSaved(ctx context.Context, messageID, memberID uint, saved bool) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkSaved",
		trace.WithAttributes(
			attribute.Int("message.id", int(messageID)),
			attribute.Int("member.id", int(memberID)),
			attribute.Bool("saved", saved),
		),
	)
	defer span.End()

	var out *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(tx, messageID)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrMessageNotFound
			}
			return err
		}

		member, err := repo.GetMember(ctx, tx, memberID)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrMemberNotFound
			}
			return err
		}

		if err := repo.UpdateMessageSaved(tx, messageID, saved); err != nil {
			return err
		}
		msg.MessageSaved = saved

		if saved {
			r := &domain.Receiving{
				MemberID:         member.ID,
				MessageID:        msg.ID,
				UrlName:          msg.UrlName,
				ThemeName:        msg.ThemeName,
				OutgoingNickname: msg.OutgoingNickname,
				Content:          PreviewContent(msg.Content),
				MessageCreatedAt: msg.CreatedAt,
			}
			if err := repo.CreateReceiving(tx, r); err != nil {
				if isDuplicate(err) {
					return ErrAlreadySaved
				}
				return err
			}
		}

		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPage returns a page of messages ordered by ID descending (most recent
// first) and the total count. The descending order is a product decision,
// not an implementation detail.
func (s *MessageService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
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

	total, err := repo.CountMessages(s.DB.WithContext(ctx))
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), offset, pageSize)
	return items, total, err
}

// Get returns the message or ErrMessageNotFound.
func (s *MessageService) Get(ctx context.Context, id uint) (*domain.Message, error) {
	m, err := repo.GetMessage(s.DB.WithContext(ctx), id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// GetByUrlName resolves a public share slug to its message.
func (s *MessageService) GetByUrlName(ctx context.Context, urlName string) (*domain.Message, error) {
	m, err := repo.GetMessageByUrlName(ctx, s.DB, urlName)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// UrlNameExists is a pure existence predicate over the slug namespace.
func (s *MessageService) UrlNameExists(ctx context.Context, urlName string) (bool, error) {
	return repo.UrlNameExists(ctx, s.DB, urlName)
}

// Delete verifies existence then removes the message. Mailbox records follow
// via the cascading foreign keys.
func (s *MessageService) Delete(ctx context.Context, id uint) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.Int("message.id", int(id))),
	)
	defer span.End()

	if err := repo.DeleteMessage(ctx, s.DB, id); err != nil {
		if repo.IsNotFound(err) {
			return ErrMessageNotFound
		}
		return err
	}
	return nil
}

// PreviewContent derives the mailbox preview: the first PreviewMaxRunes
// Unicode code points of content, or the full string when shorter. Pure, so
// it can be unit-tested away from persistence.
func PreviewContent(content string) string {
	if utf8.RuneCountInString(content) <= PreviewMaxRunes {
		return content
	}
	return string([]rune(content)[:PreviewMaxRunes])
}

// newUrlName produces a unique slug from the recipient name plus a random
// suffix, retrying on collision up to maxSlugAttempts before giving up. The
// unique index on url_name remains the final arbiter for concurrent inserts.
func (s *MessageService) newUrlName(ctx context.Context, db *gorm.DB, toName string) (string, error) {
	base := slugify(toName)
	if base == "" {
		base = "note"
	}
	for i := 0; i < maxSlugAttempts; i++ {
		candidate := base + "-" + randomSuffix(slugSuffixLen)
		exists, err := repo.UrlNameExists(ctx, db, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrSlugExhausted
}

// slugLower performs Unicode-correct lowercasing independent of any locale.
var slugLower = cases.Lower(language.Und)

// slugify lowercases name and collapses anything that is not a letter or
// digit into single hyphens.
func slugify(name string) string {
	lowered := slugLower.String(strings.TrimSpace(name))
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// slugAlphabet is intentionally unambiguous (no 0/o, 1/l).
const slugAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// randomSuffix returns n characters of crypto/rand output over slugAlphabet.
func randomSuffix(n int) string {
	max := big.NewInt(int64(len(slugAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform RNG is broken;
			// fall back to a fixed character rather than panicking.
			b[i] = slugAlphabet[0]
			continue
		}
		b[i] = slugAlphabet[idx.Int64()]
	}
	return string(b)
}
