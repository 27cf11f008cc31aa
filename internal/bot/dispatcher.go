// Package bot turns inbound chat updates into calls on the gating services
// and renders their outcomes back to the user.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/filegate/backend/internal/config"
	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/services"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/pkg/logger"
)

const (
	msgNotFound       = "This link is invalid or the file has been removed."
	msgBlocked        = "You have been banned from using this bot."
	msgJoinChannels   = "Please join the channels below to get this file, then tap \"Try again\"."
	msgVerify         = "Please verify yourself once to access files. Open the link below, then tap \"I have verified\"."
	msgDeliveryFailed = "Something went wrong while sending the file. Please try again later."
	msgInternalError  = "Something went wrong. Please try again later."
	msgAdminOnly      = "This command is for admins only."
	msgUploadDenied   = "Only admins can upload files."
	msgUnknownCommand = "Unknown command. Send /help for usage."
)

type Dispatcher struct {
	Users        store.UserStore
	Settings     store.Settings
	Access       *services.AccessService
	Verification *services.VerificationService
	Files        *services.FileService
	Admin        *services.AdminService
	Broadcast    *services.BroadcastService
	Transport    transport.Transport

	Telegram config.TelegramConfig
	Messages config.MessagesConfig

	// async runs long admin jobs off the update goroutine.
	async func(fn func())
}

func NewDispatcher(
	users store.UserStore,
	settings store.Settings,
	access *services.AccessService,
	verification *services.VerificationService,
	files *services.FileService,
	admin *services.AdminService,
	broadcast *services.BroadcastService,
	tr transport.Transport,
	telegram config.TelegramConfig,
	messages config.MessagesConfig,
) *Dispatcher {
	return &Dispatcher{
		Users:        users,
		Settings:     settings,
		Access:       access,
		Verification: verification,
		Files:        files,
		Admin:        admin,
		Broadcast:    broadcast,
		Transport:    tr,
		Telegram:     telegram,
		Messages:     messages,
		async:        func(fn func()) { go fn() },
	}
}

// Handle processes one update. Every update refreshes the sender's user
// record first, creating it on first contact.
func (d *Dispatcher) Handle(ctx context.Context, update transport.Update) {
	if update.UserID == 0 {
		return
	}

	_, err := d.Users.TouchUser(ctx, store.UserProfile{
		TelegramID: update.UserID,
		Username:   update.Username,
		FirstName:  update.FirstName,
	})
	if err != nil {
		logger.ErrorWithUser(update.UserID, "touch_user_failed", err, nil)
	}

	switch {
	case update.IsCallback():
		d.handleCallback(ctx, update)
	case update.File != nil:
		d.handleUpload(ctx, update)
	case strings.HasPrefix(update.Text, "/"):
		d.handleCommand(ctx, update)
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, update transport.Update) {
	data := update.CallbackData
	switch {
	case strings.HasPrefix(data, services.CallbackCheck):
		d.answer(ctx, update, "")
		d.redeem(ctx, update, strings.TrimPrefix(data, services.CallbackCheck))
	case strings.HasPrefix(data, services.CallbackVerified):
		if _, err := d.Verification.ConsumeChallenge(ctx, update.UserID); err != nil {
			logger.ErrorWithUser(update.UserID, "consume_challenge_failed", err, nil)
			d.answer(ctx, update, msgInternalError)
			return
		}
		d.answer(ctx, update, "Verified!")
		d.redeem(ctx, update, strings.TrimPrefix(data, services.CallbackVerified))
	default:
		d.answer(ctx, update, "")
	}
}

func (d *Dispatcher) answer(ctx context.Context, update transport.Update, text string) {
	if err := d.Transport.AnswerCallback(ctx, update.CallbackID, text); err != nil {
		logger.WarnWithUser(update.UserID, "answer_callback_failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (d *Dispatcher) redeem(ctx context.Context, update transport.Update, code string) {
	result, err := d.Access.Redeem(ctx, update.UserID, code)
	if err != nil {
		d.reply(ctx, update.ChatID, msgInternalError, nil)
		return
	}

	switch result.Outcome {
	case services.OutcomeNotFound:
		d.reply(ctx, update.ChatID, msgNotFound, nil)
	case services.OutcomeBlocked:
		d.reply(ctx, update.ChatID, msgBlocked, nil)
	case services.OutcomePendingSubscription:
		text, buttons := joinPrompt(result)
		d.reply(ctx, update.ChatID, text, buttons)
	case services.OutcomePendingVerification:
		d.reply(ctx, update.ChatID, msgVerify, [][]transport.Button{
			{{Text: "Verify", URL: result.Challenge.URL}},
			{{Text: "I have verified", Data: result.Challenge.AckData}},
		})
	case services.OutcomeDeliveryFailed:
		d.reply(ctx, update.ChatID, msgDeliveryFailed, nil)
	}
}

func joinPrompt(result services.RedeemResult) (string, [][]transport.Button) {
	var b strings.Builder
	b.WriteString(msgJoinChannels)

	var buttons [][]transport.Button
	for _, channel := range result.Missing {
		title := channel.Title
		if title == "" {
			title = channel.Handle
		}
		if url := channel.JoinURL(); url != "" {
			buttons = append(buttons, []transport.Button{{Text: "Join " + title, URL: url}})
			continue
		}
		// Private channels without a public handle can only be named.
		fmt.Fprintf(&b, "\n• %s", title)
	}
	buttons = append(buttons, []transport.Button{{Text: "Try again", Data: result.RecheckData}})
	return b.String(), buttons
}

func (d *Dispatcher) handleUpload(ctx context.Context, update transport.Update) {
	if d.Telegram.UploadAdminsOnly && !d.Telegram.IsAdmin(update.UserID) {
		d.reply(ctx, update.ChatID, msgUploadDenied, nil)
		return
	}

	file := update.File
	code, err := d.Files.Store(ctx, update.UserID, file.FileRef, file.FileType, file.Caption, file.Size)
	if err != nil {
		logger.ErrorWithUser(update.UserID, "file_store_failed", err, map[string]interface{}{
			"file_type": string(file.FileType),
		})
		d.reply(ctx, update.ChatID, msgInternalError, nil)
		return
	}

	d.reply(ctx, update.ChatID, fmt.Sprintf("File stored.\nCode: %s\nShare link: %s", code, d.Files.ShareLink(code)), nil)
}

func (d *Dispatcher) handleCommand(ctx context.Context, update transport.Update) {
	command, args := parseCommand(update.Text)

	switch command {
	case "start":
		if args == "" {
			d.reply(ctx, update.ChatID, d.message(ctx, update, models.SettingStartMessage, d.Messages.Start), nil)
			return
		}
		d.redeem(ctx, update, strings.Fields(args)[0])
		return
	case "help":
		d.reply(ctx, update.ChatID, d.message(ctx, update, models.SettingHelpMessage, d.Messages.Help), nil)
		return
	}

	handler, ok := d.adminCommands()[command]
	if !ok {
		d.reply(ctx, update.ChatID, msgUnknownCommand, nil)
		return
	}
	if !d.Telegram.IsAdmin(update.UserID) {
		d.reply(ctx, update.ChatID, msgAdminOnly, nil)
		return
	}

	reply, err := handler(ctx, update, args)
	if err != nil {
		logger.WarnWithUser(update.UserID, "admin_command_failed", map[string]interface{}{
			"command": command,
			"error":   err.Error(),
		})
		reply = adminErrorText(err)
	}
	if reply != "" {
		d.reply(ctx, update.ChatID, reply, nil)
	}
}

// message renders an admin-configurable text; {first_name} and {username}
// are substituted.
func (d *Dispatcher) message(ctx context.Context, update transport.Update, key, fallback string) string {
	text := d.Settings.GetString(ctx, key, fallback)
	username := update.Username
	if username != "" {
		username = "@" + username
	}
	return strings.NewReplacer(
		"{first_name}", update.FirstName,
		"{username}", username,
	).Replace(text)
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string, buttons [][]transport.Button) {
	if _, err := d.Transport.SendText(ctx, chatID, text, buttons); err != nil {
		logger.Warn("reply_failed", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

// parseCommand splits "/cmd@bot rest of text" into ("cmd", "rest of text").
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	head, rest, _ := strings.Cut(text, " ")
	if newline := strings.IndexByte(head, '\n'); newline >= 0 {
		rest = head[newline+1:] + " " + rest
		head = head[:newline]
	}
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func adminErrorText(err error) string {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return "Not found."
	case errors.Is(err, services.ErrInvalidSetting):
		return "Invalid value: " + err.Error()
	case errors.Is(err, services.ErrUpstreamUnavailable):
		return "Could not reach Telegram for that chat. Make sure the bot is an admin there."
	case errors.Is(err, errUsage):
		return err.Error()
	default:
		return msgInternalError
	}
}

var errUsage = errors.New("usage")

func usage(text string) error {
	return fmt.Errorf("%w: %s", errUsage, text)
}

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
