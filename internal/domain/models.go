// Package domain defines the persistence models for members, messages, and
// the derived mailbox records. These types are mapped with GORM and form the
// core data layer of the Sendy backend.
package domain

import "time"

// Member represents a registered user account. Email and nickname are both
// globally unique; the DB-level unique indexes are the source of truth for
// that invariant (application-level existence checks are advisory only).
//
// Fields:
//   - ID: auto-increment primary key.
//   - Email: login identity, unique.
//   - Nickname: display name, unique.
//   - Password: bcrypt hash, never serialized.
//   - ProfileImage: object-store key of the profile picture (empty when unset).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Member struct {
	ID           uint      `json:"id"            gorm:"primaryKey"`
	Email        string    `json:"email"         gorm:"type:varchar(255);not null;uniqueIndex:ux_members_email"`
	Nickname     string    `json:"nickname"      gorm:"type:varchar(64);not null;uniqueIndex:ux_members_nickname"`
	Password     string    `json:"-"             gorm:"type:varchar(255);not null"`
	ProfileImage string    `json:"profile_image,omitempty" gorm:"type:varchar(512)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Member.
func (Member) TableName() string { return "members" }

// Message represents a single authored gift note. The full content lives
// here; mailbox records only carry a preview. UrlName is the public share
// slug and is immutable once assigned.
//
// Fields:
//   - ID: auto-increment primary key (listing order is ID descending).
//   - UrlName: unique, human-shareable slug.
//   - ThemeName: visual theme chosen by the sender.
//   - ToName: recipient display name.
//   - OutgoingNickname: sender display name shown to the recipient.
//   - Content: full note text.
//   - MessageSaved: set when a recipient files the message into their mailbox.
type Message struct {
	ID               uint      `json:"id"                gorm:"primaryKey"`
	UrlName          string    `json:"url_name"          gorm:"type:varchar(128);not null;uniqueIndex:ux_messages_url_name"`
	ThemeName        string    `json:"theme_name"        gorm:"type:varchar(64);not null"`
	ToName           string    `json:"to_name"           gorm:"type:varchar(64);not null"`
	OutgoingNickname string    `json:"outgoing_nickname" gorm:"type:varchar(64);not null"`
	Content          string    `json:"content"           gorm:"type:text;not null"`
	MessageSaved     bool      `json:"message_saved"     gorm:"not null;default:false"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Outgoing is the sender-side mailbox record: a denormalized copy of a
// message plus the authoring member, created exactly once at message-creation
// time (hence the unique index on MessageID). Content holds the 70-rune
// preview, not the full note.
type Outgoing struct {
	ID               uint      `json:"id"         gorm:"primaryKey"`
	MemberID         uint      `json:"member_id"  gorm:"not null;index:idx_outgoing_member"`
	MessageID        uint      `json:"message_id" gorm:"not null;uniqueIndex:ux_outgoing_message"`
	UrlName          string    `json:"url_name"   gorm:"type:varchar(128);not null"`
	ThemeName        string    `json:"theme_name" gorm:"type:varchar(64);not null"`
	ToName           string    `json:"to_name"    gorm:"type:varchar(64);not null"`
	Content          string    `json:"content"    gorm:"type:varchar(512);not null"`
	MessageCreatedAt time.Time `json:"message_created_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Member is the sender; Message remains the source of truth for full
	// content. Both associations cascade so mailbox rows never outlive
	// their parents.
	Member  Member  `json:"-" gorm:"foreignKey:MemberID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Outgoing.
func (Outgoing) TableName() string { return "outgoing" }

// Receiving is the recipient-side mailbox record, created when a member marks
// a message as saved. One message may be saved by many members, but at most
// once per member (unique (message_id, member_id)). Keyed to the sender's
// OutgoingNickname where Outgoing is keyed to ToName.
type Receiving struct {
	ID               uint      `json:"id"         gorm:"primaryKey"`
	MemberID         uint      `json:"member_id"  gorm:"not null;index:idx_receiving_member;uniqueIndex:ux_receiving_message_member,priority:2"`
	MessageID        uint      `json:"message_id" gorm:"not null;uniqueIndex:ux_receiving_message_member,priority:1"`
	UrlName          string    `json:"url_name"   gorm:"type:varchar(128);not null"`
	ThemeName        string    `json:"theme_name" gorm:"type:varchar(64);not null"`
	OutgoingNickname string    `json:"outgoing_nickname" gorm:"type:varchar(64);not null"`
	Content          string    `json:"content"    gorm:"type:varchar(512);not null"`
	MessageCreatedAt time.Time `json:"message_created_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Member  Member  `json:"-" gorm:"foreignKey:MemberID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Receiving.
func (Receiving) TableName() string { return "receiving" }
