package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/services"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/pkg/logger"
)

type commandFunc func(ctx context.Context, update transport.Update, args string) (string, error)

func (d *Dispatcher) adminCommands() map[string]commandFunc {
	return map[string]commandFunc{
		"addchannel":   d.cmdAddChannel,
		"delchannel":   d.cmdDelChannel,
		"channels":     d.cmdChannels,
		"autodelete":   d.settingCommand(models.SettingAutoDeleteSeconds, "/autodelete <seconds>"),
		"protect":      d.settingCommand(models.SettingProtectContent, "/protect on|off"),
		"verification": d.settingCommand(models.SettingVerificationEnabled, "/verification on|off"),
		"setstart":     d.settingCommand(models.SettingStartMessage, "/setstart <text>"),
		"sethelp":      d.settingCommand(models.SettingHelpMessage, "/sethelp <text>"),
		"shortener":    d.cmdShortener,
		"delete":       d.cmdDelete,
		"ban":          d.banCommand(true),
		"unban":        d.banCommand(false),
		"stats":        d.cmdStats,
		"broadcast":    d.cmdBroadcast,
	}
}

func (d *Dispatcher) cmdAddChannel(ctx context.Context, update transport.Update, args string) (string, error) {
	if args == "" {
		return "", usage("/addchannel @handle")
	}
	channel, err := d.Admin.AddChannel(ctx, update.UserID, strings.Fields(args)[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Added %s (%d) to the required channels.", channel.Title, channel.ChannelID), nil
}

func (d *Dispatcher) cmdDelChannel(ctx context.Context, update transport.Update, args string) (string, error) {
	id, err := parseUserID(args)
	if err != nil {
		return "", usage("/delchannel <channel id>")
	}
	if err := d.Admin.RemoveChannel(ctx, update.UserID, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed channel %d.", id), nil
}

func (d *Dispatcher) cmdChannels(ctx context.Context, _ transport.Update, _ string) (string, error) {
	channels, err := d.Admin.ListChannels(ctx)
	if err != nil {
		return "", err
	}
	if len(channels) == 0 {
		return "No required channels. Everyone passes the subscription check.", nil
	}

	var b strings.Builder
	b.WriteString("Required channels:")
	for _, channel := range channels {
		fmt.Fprintf(&b, "\n• %s (%d)", channel.Title, channel.ChannelID)
		if channel.Handle != "" {
			fmt.Fprintf(&b, " @%s", channel.Handle)
		}
	}
	return b.String(), nil
}

func (d *Dispatcher) settingCommand(key, help string) commandFunc {
	return func(ctx context.Context, update transport.Update, args string) (string, error) {
		if args == "" {
			return "", usage(help)
		}
		if err := d.Admin.UpdateSetting(ctx, update.UserID, key, args); err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated %s.", key), nil
	}
}

func (d *Dispatcher) cmdShortener(ctx context.Context, update transport.Update, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", usage("/shortener <domain> <api key>")
	}
	if err := d.Admin.SetShortener(ctx, update.UserID, fields[0], fields[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Shortener set to %s.", fields[0]), nil
}

func (d *Dispatcher) cmdDelete(ctx context.Context, update transport.Update, args string) (string, error) {
	if args == "" {
		return "", usage("/delete <code>")
	}
	code := strings.Fields(args)[0]
	if err := d.Admin.DeleteFile(ctx, update.UserID, code); err != nil {
		return "", err
	}
	return fmt.Sprintf("File %s deleted. Its link no longer works.", code), nil
}

func (d *Dispatcher) banCommand(banned bool) commandFunc {
	return func(ctx context.Context, update transport.Update, args string) (string, error) {
		id, err := parseUserID(args)
		if err != nil {
			if banned {
				return "", usage("/ban <user id>")
			}
			return "", usage("/unban <user id>")
		}
		if err := d.Admin.SetBanned(ctx, update.UserID, id, banned); err != nil {
			return "", err
		}
		if banned {
			return fmt.Sprintf("User %d banned.", id), nil
		}
		return fmt.Sprintf("User %d unbanned.", id), nil
	}
}

func (d *Dispatcher) cmdStats(ctx context.Context, _ transport.Update, _ string) (string, error) {
	stats, err := d.Admin.Stats(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Users: %d (verified %d, banned %d)\nFiles: %d (active %d)\nViews: %d\nDownloads: %d\nRequired channels: %d",
		stats.Users, stats.VerifiedUsers, stats.BannedUsers,
		stats.Files, stats.ActiveFiles,
		stats.TotalViews, stats.TotalDownloads,
		stats.GateChannels,
	), nil
}

// cmdBroadcast sends args as text, or forwards the replied-to message when
// the command is a reply. The run continues in the background.
func (d *Dispatcher) cmdBroadcast(_ context.Context, update transport.Update, args string) (string, error) {
	msg := services.BroadcastMessage{Text: args}
	if update.ReplyToMessageID != 0 {
		msg = services.BroadcastMessage{FromChatID: update.ChatID, MessageID: update.ReplyToMessageID}
	} else if args == "" {
		return "", usage("/broadcast <text>, or reply to a message with /broadcast")
	}

	d.async(func() {
		ctx := context.Background()
		result, err := d.Broadcast.Send(ctx, update.UserID, msg)
		if err != nil {
			logger.ErrorWithUser(update.UserID, "broadcast_failed", err, nil)
		}
		d.reply(ctx, update.ChatID, fmt.Sprintf(
			"Broadcast finished. Sent: %d, failed: %d, total: %d.",
			result.Sent, result.Failed, result.Total,
		), nil)
	})
	return "Broadcast started.", nil
}
