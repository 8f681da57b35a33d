package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/witchdelivery/sendy-backend/internal/domain"
	"github.com/witchdelivery/sendy-backend/internal/repo"
)

// test DB helper shared by the service tests in this file
func newMsgSvcDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("msg_svc_%d.db", time.Now().UnixNano()))
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
	if err := db.AutoMigrate(&domain.Member{}, &domain.Message{}, &domain.Outgoing{}, &domain.Receiving{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedSvcMember(t *testing.T, db *gorm.DB, email, nickname string) *domain.Member {
	t.Helper()
	m, err := repo.CreateMember(context.Background(), db, email, nickname, "hash")
	if err != nil {
		t.Fatalf("seed member %s: %v", email, err)
	}
	return m
}

func TestPreviewContent(t *testing.T) {
	short := "a short note"
	if got := PreviewContent(short); got != short {
		t.Fatalf("PreviewContent(short) = %q, want identity", got)
	}

	exact := strings.Repeat("x", PreviewMaxRunes)
	if got := PreviewContent(exact); got != exact {
		t.Fatalf("PreviewContent(70 runes) = %q, want identity", got)
	}

	// multi-byte content must be clipped by rune, never mid-character
	long := strings.Repeat("가", PreviewMaxRunes+5)
	got := PreviewContent(long)
	want := strings.Repeat("가", PreviewMaxRunes)
	if got != want {
		t.Fatalf("PreviewContent clipped to %d runes, want %d", len([]rune(got)), PreviewMaxRunes)
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Alice", "alice"},
		{"  Bob  Smith ", "bob-smith"},
		{"O'Brien!!", "o-brien"},
		{"--already--dashed--", "already-dashed"},
		{"!!!", ""},
		{"민지", "민지"},
	}
	for _, tc := range cases {
		if got := slugify(tc.in); got != tc.want {
			t.Fatalf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRandomSuffix(t *testing.T) {
	s := randomSuffix(slugSuffixLen)
	if len(s) != slugSuffixLen {
		t.Fatalf("suffix length = %d, want %d", len(s), slugSuffixLen)
	}
	for _, r := range s {
		if !strings.ContainsRune(slugAlphabet, r) {
			t.Fatalf("suffix %q contains %q outside the alphabet", s, r)
		}
	}
}

func TestMessageService_Create_DerivesOutgoing(t *testing.T) {
	db := newMsgSvcDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	sender := seedSvcMember(t, db, "sender@x.com", "sender")

	content := strings.Repeat("h", 100)
	msg, err := svc.Create(ctx, CreateMessageInput{
		ThemeName:        "stars",
		ToName:           "Min Ji",
		OutgoingNickname: "secret admirer",
		Content:          content,
	}, sender.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if msg.ID == 0 || msg.MessageSaved {
		t.Fatalf("unexpected message state: %+v", msg)
	}
	if !strings.HasPrefix(msg.UrlName, "min-ji-") {
		t.Fatalf("url name %q does not derive from recipient", msg.UrlName)
	}
	if msg.Content != content {
		t.Fatalf("message content truncated")
	}

	var outs []domain.Outgoing
	if err := db.Find(&outs).Error; err != nil {
		t.Fatalf("load outgoing: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("outgoing records = %d, want 1", len(outs))
	}
	o := outs[0]
	if o.MemberID != sender.ID || o.MessageID != msg.ID || o.UrlName != msg.UrlName {
		t.Fatalf("outgoing record mismatched: %+v", o)
	}
	if o.Content != strings.Repeat("h", PreviewMaxRunes) {
		t.Fatalf("outgoing preview = %q, want 70-rune clip", o.Content)
	}
}

func TestMessageService_Create_UnknownAuthorRollsBack(t *testing.T) {
	db := newMsgSvcDB(t)
	svc := &MessageService{DB: db}

	_, err := svc.Create(context.Background(), CreateMessageInput{
		ToName:  "nobody",
		Content: "hi",
	}, 999)
	if !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("Create err = %v, want ErrMemberNotFound", err)
	}

	var msgCount, outCount int64
	db.Model(&domain.Message{}).Count(&msgCount)
	db.Model(&domain.Outgoing{}).Count(&outCount)
	if msgCount != 0 || outCount != 0 {
		t.Fatalf("rollback left rows behind: messages=%d outgoing=%d", msgCount, outCount)
	}
}

func TestMessageService_MarkSaved_FilesReceiving(t *testing.T) {
	db := newMsgSvcDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	sender := seedSvcMember(t, db, "s@x.com", "s")
	saver := seedSvcMember(t, db, "r@x.com", "r")

	msg, err := svc.Create(ctx, CreateMessageInput{
		ToName:           "r",
		OutgoingNickname: "s",
		Content:          "keep this one",
	}, sender.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	saved, err := svc.MarkSaved(ctx, msg.ID, saver.ID, true)
	if err != nil {
		t.Fatalf("MarkSaved: %v", err)
	}
	if !saved.MessageSaved {
		t.Fatalf("message not flagged saved")
	}

	var recs []domain.Receiving
	if err := db.Find(&recs).Error; err != nil {
		t.Fatalf("load receiving: %v", err)
	}
	if len(recs) != 1 || recs[0].MemberID != saver.ID || recs[0].MessageID != msg.ID {
		t.Fatalf("receiving records unexpected: %+v", recs)
	}
	if recs[0].OutgoingNickname != "s" {
		t.Fatalf("receiving keyed on %q, want sender nickname", recs[0].OutgoingNickname)
	}

	// second save by the same member is a conflict
	if _, err := svc.MarkSaved(ctx, msg.ID, saver.ID, true); !errors.Is(err, ErrAlreadySaved) {
		t.Fatalf("repeat MarkSaved err = %v, want ErrAlreadySaved", err)
	}

	// a different member may still save the same message
	other := seedSvcMember(t, db, "o@x.com", "o")
	if _, err := svc.MarkSaved(ctx, msg.ID, other.ID, true); err != nil {
		t.Fatalf("MarkSaved by other member: %v", err)
	}
}

func TestMessageService_MarkSaved_FalseClearsWithoutReceiving(t *testing.T) {
	db := newMsgSvcDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	sender := seedSvcMember(t, db, "s@x.com", "s")
	msg, err := svc.Create(ctx, CreateMessageInput{ToName: "t", Content: "c"}, sender.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	out, err := svc.MarkSaved(ctx, msg.ID, sender.ID, false)
	if err != nil {
		t.Fatalf("MarkSaved(false): %v", err)
	}
	if out.MessageSaved {
		t.Fatalf("saved flag should stay false")
	}
	var recCount int64
	db.Model(&domain.Receiving{}).Count(&recCount)
	if recCount != 0 {
		t.Fatalf("receiving rows = %d, want 0", recCount)
	}
}

func TestMessageService_MarkSaved_Sentinels(t *testing.T) {
	db := newMsgSvcDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	sender := seedSvcMember(t, db, "s@x.com", "s")

	if _, err := svc.MarkSaved(ctx, 999, sender.ID, true); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("absent message err = %v, want ErrMessageNotFound", err)
	}

	msg, err := svc.Create(ctx, CreateMessageInput{ToName: "t", Content: "c"}, sender.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.MarkSaved(ctx, msg.ID, 999, true); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("absent member err = %v, want ErrMemberNotFound", err)
	}
}

func TestMessageService_ListPage_NewestFirst(t *testing.T) {
	db := newMsgSvcDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	sender := seedSvcMember(t, db, "s@x.com", "s")
	for _, to := range []string{"one", "two", "three"} {
		if _, err := svc.Create(ctx, CreateMessageInput{ToName: to, Content: to}, sender.ID); err != nil {
			t.Fatalf("Create %s: %v", to, err)
		}
	}

	items, total, err := svc.ListPage(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("total=%d len=%d, want 3 and 2", total, len(items))
	}
	if items[0].ID <= items[1].ID {
		t.Fatalf("not newest-first: %d then %d", items[0].ID, items[1].ID)
	}
	if items[0].Content != "three" {
		t.Fatalf("first item = %q, want the most recent", items[0].Content)
	}

	// defaults kick in for nonsense paging values
	all, total, err := svc.ListPage(ctx, 0, 0)
	if err != nil || total != 3 || len(all) != 3 {
		t.Fatalf("default page = %d items, total %d, err %v", len(all), total, err)
	}
}

func TestMessageService_ListPage_Empty(t *testing.T) {
	svc := &MessageService{DB: newMsgSvcDB(t)}
	items, total, err := svc.ListPage(context.Background(), 1, 20)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("empty list = %v items, total %d, err %v", items, total, err)
	}
}

func TestMessageService_Get_And_GetByUrlName(t *testing.T) {
	db := newMsgSvcDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	sender := seedSvcMember(t, db, "s@x.com", "s")
	msg, err := svc.Create(ctx, CreateMessageInput{ToName: "friend", Content: "hey"}, sender.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Get(ctx, msg.ID)
	if err != nil || got.ID != msg.ID {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := svc.Get(ctx, 999); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("Get absent err = %v", err)
	}

	bySlug, err := svc.GetByUrlName(ctx, msg.UrlName)
	if err != nil || bySlug.ID != msg.ID {
		t.Fatalf("GetByUrlName = %+v, %v", bySlug, err)
	}
	if _, err := svc.GetByUrlName(ctx, "no-such-slug"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("GetByUrlName absent err = %v", err)
	}

	exists, err := svc.UrlNameExists(ctx, msg.UrlName)
	if err != nil || !exists {
		t.Fatalf("UrlNameExists(%q) = %v, %v", msg.UrlName, exists, err)
	}
}

func TestMessageService_Delete(t *testing.T) {
	db := newMsgSvcDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	sender := seedSvcMember(t, db, "s@x.com", "s")
	msg, err := svc.Create(ctx, CreateMessageInput{ToName: "t", Content: "c"}, sender.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(ctx, msg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
	if err := svc.Delete(ctx, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}
