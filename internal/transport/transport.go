// Package transport defines the messaging capabilities the gating engine
// consumes. Adapters live in subpackages.
package transport

import (
	"context"
	"errors"

	"github.com/filegate/backend/internal/models"
)

type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// Satisfies reports whether the status counts as channel membership.
func (s MemberStatus) Satisfies() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	default:
		return false
	}
}

var ErrMessageNotFound = errors.New("message not found")

type ChatInfo struct {
	ID    int64
	Title string
}

// Button is one inline action: a URL to open or opaque data echoed back as
// a callback.
type Button struct {
	Text string
	URL  string
	Data string
}

type Transport interface {
	SendFile(ctx context.Context, chatID int64, fileRef string, fileType models.FileType, caption string, protectContent bool) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	GetChatMembership(ctx context.Context, channelID int64, userID int64) (MemberStatus, error)
	GetChatInfo(ctx context.Context, handle string) (ChatInfo, error)
	ForwardMessage(ctx context.Context, toChatID int64, fromChatID int64, messageID int) (int, error)
	SendText(ctx context.Context, chatID int64, text string, buttons [][]Button) (int, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// IncomingFile is a file attached to an inbound message.
type IncomingFile struct {
	FileRef  string
	FileType models.FileType
	Caption  string
	Size     int64
}

// Update is one inbound event, already normalized by an adapter.
type Update struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string

	Text      string
	MessageID int
	// ReplyToMessageID is set when the message replies to another one.
	ReplyToMessageID int

	CallbackID   string
	CallbackData string

	File *IncomingFile
}

func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}
