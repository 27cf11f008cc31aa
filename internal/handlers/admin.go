package handlers

import (
	"context"
	"strings"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/services"
	"github.com/filegate/backend/pkg/logger"
	"github.com/filegate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// httpActor is recorded as the acting admin for API calls. API operators
// are not Telegram users; their JWT subject is in the request log.
const httpActor int64 = 0

type AdminHandler struct {
	DB        *gorm.DB
	Admin     *services.AdminService
	Files     *services.FileService
	Broadcast *services.BroadcastService

	async func(func())
}

func NewAdminHandler(db *gorm.DB, admin *services.AdminService, files *services.FileService, broadcast *services.BroadcastService) *AdminHandler {
	return &AdminHandler{
		DB:        db,
		Admin:     admin,
		Files:     files,
		Broadcast: broadcast,
		async:     func(fn func()) { go fn() },
	}
}

func (h *AdminHandler) Register(r fiber.Router) {
	r.Get("/stats", h.Stats)

	r.Get("/channels", h.ListChannels)
	r.Post("/channels", h.AddChannel)
	r.Delete("/channels/:id", h.RemoveChannel)

	r.Get("/settings", h.ListSettings)
	r.Put("/settings/:key", h.UpdateSetting)

	r.Get("/files", h.ListFiles)
	r.Get("/files/:code", h.GetFile)
	r.Delete("/files/:code", h.DeleteFile)

	r.Get("/users", h.ListUsers)
	r.Post("/users/:id/ban", h.Ban)
	r.Post("/users/:id/unban", h.Unban)

	r.Post("/broadcast", h.StartBroadcast)
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.Admin.Stats(c.UserContext())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading stats")
	}
	return utils.Success(c, fiber.StatusOK, stats)
}

func (h *AdminHandler) ListChannels(c *fiber.Ctx) error {
	channels, err := h.Admin.ListChannels(c.UserContext())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing channels")
	}
	return utils.Success(c, fiber.StatusOK, channels)
}

type addChannelRequest struct {
	Handle string `json:"handle"`
}

func (h *AdminHandler) AddChannel(c *fiber.Ctx) error {
	var req addChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Handle = strings.TrimSpace(req.Handle)
	if req.Handle == "" {
		return utils.Error(c, fiber.StatusBadRequest, "handle is required")
	}

	channel, err := h.Admin.AddChannel(c.UserContext(), httpActor, req.Handle)
	if err != nil {
		return serviceError(c, err, "channel not found", "failed adding channel")
	}
	return utils.Success(c, fiber.StatusCreated, channel)
}

func (h *AdminHandler) RemoveChannel(c *fiber.Ctx) error {
	channelID, err := parseTelegramID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid channel id")
	}
	if err := h.Admin.RemoveChannel(c.UserContext(), httpActor, channelID); err != nil {
		return serviceError(c, err, "channel not found", "failed removing channel")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"channelID": channelID})
}

func (h *AdminHandler) ListSettings(c *fiber.Ctx) error {
	settings, err := h.Admin.AllSettings(c.UserContext())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading settings")
	}
	if settings[models.SettingShortenerAPIKey] != "" {
		settings[models.SettingShortenerAPIKey] = "[REDACTED]"
	}
	return utils.Success(c, fiber.StatusOK, settings)
}

type updateSettingRequest struct {
	Value string `json:"value"`
}

func (h *AdminHandler) UpdateSetting(c *fiber.Ctx) error {
	var req updateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	key := strings.TrimSpace(c.Params("key"))
	if err := h.Admin.UpdateSetting(c.UserContext(), httpActor, key, req.Value); err != nil {
		return serviceError(c, err, "setting not found", "failed updating setting")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"key": key})
}

func (h *AdminHandler) ListFiles(c *fiber.Ctx) error {
	page, limit, offset := utils.PageParams(c, 50, 200)

	query := h.DB.WithContext(c.UserContext()).Model(&models.FileRecord{})
	if c.QueryBool("active") {
		query = query.Where("is_active = ?", true)
	}
	if uploader := c.Query("uploader"); uploader != "" {
		uploaderID, err := parseTelegramID(uploader)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid uploader id")
		}
		query = query.Where("uploaded_by = ?", uploaderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting files")
	}

	var files []models.FileRecord
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}
	return utils.Paginated(c, files, page, limit, total)
}

func (h *AdminHandler) GetFile(c *fiber.Ctx) error {
	record, err := h.Files.Get(c.UserContext(), c.Params("code"))
	if err != nil {
		return serviceError(c, err, "file not found", "failed loading file")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"file":      record,
		"shareLink": h.Files.ShareLink(record.ShortCode),
	})
}

func (h *AdminHandler) DeleteFile(c *fiber.Ctx) error {
	code := c.Params("code")
	if err := h.Admin.DeleteFile(c.UserContext(), httpActor, code); err != nil {
		return serviceError(c, err, "file not found", "failed deleting file")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"shortCode": strings.ToLower(code)})
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	page, limit, offset := utils.PageParams(c, 50, 200)

	query := h.DB.WithContext(c.UserContext()).Model(&models.User{})
	if c.QueryBool("banned") {
		query = query.Where("banned = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := query.Order("telegram_id ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}
	return utils.Paginated(c, users, page, limit, total)
}

func (h *AdminHandler) Ban(c *fiber.Ctx) error {
	return h.setBanned(c, true)
}

func (h *AdminHandler) Unban(c *fiber.Ctx) error {
	return h.setBanned(c, false)
}

func (h *AdminHandler) setBanned(c *fiber.Ctx, banned bool) error {
	userID, err := parseTelegramID(c.Params("id"))
	if err != nil || userID == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if err := h.Admin.SetBanned(c.UserContext(), httpActor, userID, banned); err != nil {
		return serviceError(c, err, "user not found", "failed updating user")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"telegramID": userID, "banned": banned})
}

type broadcastRequest struct {
	Text       string `json:"text"`
	FromChatID int64  `json:"fromChatID"`
	MessageID  int    `json:"messageID"`
}

// StartBroadcast queues the run and returns immediately; the outcome is
// written to the audit log when it finishes.
func (h *AdminHandler) StartBroadcast(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.MessageID == 0 && strings.TrimSpace(req.Text) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "text or messageID is required")
	}
	if req.MessageID != 0 && req.FromChatID == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "fromChatID is required to forward a message")
	}

	msg := services.BroadcastMessage{
		Text:       req.Text,
		FromChatID: req.FromChatID,
		MessageID:  req.MessageID,
	}
	subject := logger.GetSubjectFromContext(c)
	h.async(func() {
		if _, err := h.Broadcast.Send(context.Background(), httpActor, msg); err != nil {
			logger.Error("broadcast_failed", err, map[string]interface{}{
				"subject": subject,
			})
		}
	})

	return utils.Success(c, fiber.StatusAccepted, fiber.Map{"queued": true})
}
