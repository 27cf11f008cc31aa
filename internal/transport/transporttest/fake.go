// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/transport"
)

type SentFile struct {
	ChatID         int64
	MessageID      int
	FileRef        string
	FileType       models.FileType
	Caption        string
	ProtectContent bool
}

type SentText struct {
	ChatID    int64
	MessageID int
	Text      string
	Buttons   [][]transport.Button
}

type Forward struct {
	ToChatID   int64
	FromChatID int64
	MessageID  int
}

type Deleted struct {
	ChatID    int64
	MessageID int
}

type Fake struct {
	mu sync.Mutex

	nextID int

	// Memberships maps channel -> user -> status. Missing entries are "left".
	Memberships map[int64]map[int64]transport.MemberStatus
	// MembershipErrors makes queries for a channel fail.
	MembershipErrors map[int64]error
	Chats            map[string]transport.ChatInfo

	SendFileErr error
	DeleteErr   error
	SendTextErr map[int64]error
	ForwardErr  map[int64]error

	Files     []SentFile
	Texts     []SentText
	Forwards  []Forward
	Deletes   []Deleted
	Callbacks []string
}

func New() *Fake {
	return &Fake{
		Memberships:      map[int64]map[int64]transport.MemberStatus{},
		MembershipErrors: map[int64]error{},
		Chats:            map[string]transport.ChatInfo{},
		SendTextErr:      map[int64]error{},
		ForwardErr:       map[int64]error{},
	}
}

var _ transport.Transport = (*Fake)(nil)

func (f *Fake) SetMembership(channelID, userID int64, status transport.MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Memberships[channelID] == nil {
		f.Memberships[channelID] = map[int64]transport.MemberStatus{}
	}
	f.Memberships[channelID][userID] = status
}

func (f *Fake) SetSendFileErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SendFileErr = err
}

func (f *Fake) SetDeleteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteErr = err
}

func (f *Fake) SendFile(_ context.Context, chatID int64, fileRef string, fileType models.FileType, caption string, protectContent bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendFileErr != nil {
		return 0, f.SendFileErr
	}
	f.nextID++
	f.Files = append(f.Files, SentFile{
		ChatID:         chatID,
		MessageID:      f.nextID,
		FileRef:        fileRef,
		FileType:       fileType,
		Caption:        caption,
		ProtectContent: protectContent,
	})
	return f.nextID, nil
}

func (f *Fake) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deletes = append(f.Deletes, Deleted{ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *Fake) GetChatMembership(_ context.Context, channelID int64, userID int64) (transport.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.MembershipErrors[channelID]; err != nil {
		return "", err
	}
	if status, ok := f.Memberships[channelID][userID]; ok {
		return status, nil
	}
	return transport.StatusLeft, nil
}

func (f *Fake) GetChatInfo(_ context.Context, handle string) (transport.ChatInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.Chats[handle]
	if !ok {
		return transport.ChatInfo{}, fmt.Errorf("chat %s not found", handle)
	}
	return info, nil
}

func (f *Fake) ForwardMessage(_ context.Context, toChatID int64, fromChatID int64, messageID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ForwardErr[toChatID]; err != nil {
		return 0, err
	}
	f.nextID++
	f.Forwards = append(f.Forwards, Forward{ToChatID: toChatID, FromChatID: fromChatID, MessageID: messageID})
	return f.nextID, nil
}

func (f *Fake) SendText(_ context.Context, chatID int64, text string, buttons [][]transport.Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendTextErr[chatID]; err != nil {
		return 0, err
	}
	f.nextID++
	f.Texts = append(f.Texts, SentText{ChatID: chatID, MessageID: f.nextID, Text: text, Buttons: buttons})
	return f.nextID, nil
}

func (f *Fake) AnswerCallback(_ context.Context, callbackID string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Callbacks = append(f.Callbacks, callbackID)
	return nil
}

func (f *Fake) SentFiles() []SentFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentFile(nil), f.Files...)
}

func (f *Fake) SentTexts() []SentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentText(nil), f.Texts...)
}

func (f *Fake) DeletedMessages() []Deleted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Deleted(nil), f.Deletes...)
}

func (f *Fake) Forwarded() []Forward {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Forward(nil), f.Forwards...)
}

// LastText returns the most recent text sent to chatID.
func (f *Fake) LastText(chatID int64) (SentText, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Texts) - 1; i >= 0; i-- {
		if f.Texts[i].ChatID == chatID {
			return f.Texts[i], true
		}
	}
	return SentText{}, false
}

var ErrSendFailed = errors.New("transport: send failed")
