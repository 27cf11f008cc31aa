// Package telegram adapts the Telegram Bot API to the transport contract.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/pkg/logger"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

type Client struct {
	bot     *bot.Bot
	timeout time.Duration
	handler func(ctx context.Context, update transport.Update)
}

// New creates a client; handler receives every inbound update once Start
// runs. The handler may be set later with SetHandler.
func New(token string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{timeout: timeout}
	b, err := bot.New(token, bot.WithDefaultHandler(c.dispatch))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	c.bot = b
	return c, nil
}

var _ transport.Transport = (*Client)(nil)

func (c *Client) SetHandler(handler func(ctx context.Context, update transport.Update)) {
	c.handler = handler
}

// Start long-polls for updates until ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	logger.Info("telegram_polling_started", nil)
	c.bot.Start(ctx)
}

// Username returns the bot's public username.
func (c *Client) Username(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return "", err
	}
	return me.Username, nil
}

func (c *Client) SendFile(ctx context.Context, chatID int64, fileRef string, fileType models.FileType, caption string, protectContent bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	input := &tgmodels.InputFileString{Data: fileRef}

	var (
		msg *tgmodels.Message
		err error
	)
	switch fileType {
	case models.FileTypeVideo:
		msg, err = c.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:         chatID,
			Video:          input,
			Caption:        caption,
			ProtectContent: protectContent,
		})
	case models.FileTypeAudio:
		msg, err = c.bot.SendAudio(ctx, &bot.SendAudioParams{
			ChatID:         chatID,
			Audio:          input,
			Caption:        caption,
			ProtectContent: protectContent,
		})
	case models.FileTypePhoto:
		msg, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:         chatID,
			Photo:          input,
			Caption:        caption,
			ProtectContent: protectContent,
		})
	default:
		msg, err = c.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:         chatID,
			Document:       input,
			Caption:        caption,
			ProtectContent: protectContent,
		})
	}
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "message to delete not found") {
		return transport.ErrMessageNotFound
	}
	return err
}

func (c *Client) GetChatMembership(ctx context.Context, channelID int64, userID int64) (transport.MemberStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	member, err := c.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: channelID,
		UserID: userID,
	})
	if err != nil {
		return "", err
	}
	return transport.MemberStatus(member.Type), nil
}

func (c *Client) GetChatInfo(ctx context.Context, handle string) (transport.ChatInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var chatID any = handle
	if !strings.HasPrefix(handle, "@") && !strings.HasPrefix(handle, "-") {
		chatID = "@" + handle
	}
	chat, err := c.bot.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return transport.ChatInfo{}, err
	}
	return transport.ChatInfo{ID: chat.ID, Title: chat.Title}, nil
}

func (c *Client) ForwardMessage(ctx context.Context, toChatID int64, fromChatID int64, messageID int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     toChatID,
		FromChatID: fromChatID,
		MessageID:  messageID,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string, buttons [][]transport.Button) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if len(buttons) > 0 {
		params.ReplyMarkup = keyboard(buttons)
	}

	msg, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}

func keyboard(rows [][]transport.Button) *tgmodels.InlineKeyboardMarkup {
	markup := &tgmodels.InlineKeyboardMarkup{}
	for _, row := range rows {
		var line []tgmodels.InlineKeyboardButton
		for _, button := range row {
			line = append(line, tgmodels.InlineKeyboardButton{
				Text:         button.Text,
				URL:          button.URL,
				CallbackData: button.Data,
			})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	return markup
}

func (c *Client) dispatch(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	if c.handler == nil {
		return
	}
	normalized, ok := normalize(update)
	if !ok {
		return
	}
	c.handler(ctx, normalized)
}

func normalize(update *tgmodels.Update) (transport.Update, bool) {
	if update.CallbackQuery != nil {
		query := update.CallbackQuery
		return transport.Update{
			UserID:       query.From.ID,
			ChatID:       query.From.ID,
			Username:     query.From.Username,
			FirstName:    query.From.FirstName,
			CallbackID:   query.ID,
			CallbackData: query.Data,
		}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return transport.Update{}, false
	}

	normalized := transport.Update{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
		Text:      msg.Text,
		MessageID: msg.ID,
		File:      incomingFile(msg),
	}
	if msg.ReplyToMessage != nil {
		normalized.ReplyToMessageID = msg.ReplyToMessage.ID
	}
	return normalized, true
}

func incomingFile(msg *tgmodels.Message) *transport.IncomingFile {
	switch {
	case msg.Document != nil:
		return &transport.IncomingFile{
			FileRef:  msg.Document.FileID,
			FileType: models.FileTypeDocument,
			Caption:  msg.Caption,
			Size:     int64(msg.Document.FileSize),
		}
	case msg.Video != nil:
		return &transport.IncomingFile{
			FileRef:  msg.Video.FileID,
			FileType: models.FileTypeVideo,
			Caption:  msg.Caption,
			Size:     int64(msg.Video.FileSize),
		}
	case msg.Audio != nil:
		return &transport.IncomingFile{
			FileRef:  msg.Audio.FileID,
			FileType: models.FileTypeAudio,
			Caption:  msg.Caption,
			Size:     int64(msg.Audio.FileSize),
		}
	case len(msg.Photo) > 0:
		// Telegram lists photo sizes smallest first.
		largest := msg.Photo[len(msg.Photo)-1]
		return &transport.IncomingFile{
			FileRef:  largest.FileID,
			FileType: models.FileTypePhoto,
			Caption:  msg.Caption,
			Size:     int64(largest.FileSize),
		}
	default:
		return nil
	}
}
