package handlers

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuditHandler struct {
	DB *gorm.DB
}

func NewAuditHandler(db *gorm.DB) *AuditHandler {
	return &AuditHandler{DB: db}
}

func (h *AuditHandler) Register(r fiber.Router) {
	r.Get("/audit", h.List)
	r.Get("/audit/export", h.Export)
}

func (h *AuditHandler) filtered(c *fiber.Ctx) *gorm.DB {
	query := h.DB.WithContext(c.UserContext()).Model(&models.AuditLog{})
	if action := strings.TrimSpace(c.Query("action")); action != "" {
		query = query.Where("action = ?", action)
	}
	if resourceType := strings.TrimSpace(c.Query("resourceType")); resourceType != "" {
		query = query.Where("resource_type = ?", resourceType)
	}
	if resourceID := strings.TrimSpace(c.Query("resourceID")); resourceID != "" {
		query = query.Where("resource_id = ?", resourceID)
	}
	return query
}

func (h *AuditHandler) List(c *fiber.Ctx) error {
	page, limit, offset := utils.PageParams(c, 50, 500)
	query := h.filtered(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting audit logs")
	}

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading audit logs")
	}
	return utils.Paginated(c, logs, page, limit, total)
}

func (h *AuditHandler) Export(c *fiber.Ctx) error {
	format := strings.ToLower(strings.TrimSpace(c.Query("format", "csv")))
	if format != "csv" && format != "json" {
		return utils.Error(c, fiber.StatusBadRequest, "format must be csv or json")
	}

	var logs []models.AuditLog
	if err := h.filtered(c).
		Order("created_at DESC").
		Limit(10000).
		Find(&logs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading audit logs")
	}

	if format == "json" {
		c.Set("Content-Type", "application/json")
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.json"))
		return c.JSON(fiber.Map{"success": true, "data": logs})
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.csv"))

	writer := csv.NewWriter(c.Response().BodyWriter())
	_ = writer.Write([]string{"Timestamp", "Actor", "Action", "Resource Type", "Resource ID", "Details"})

	for _, log := range logs {
		actor := ""
		if log.UserID != nil {
			actor = strconv.FormatInt(*log.UserID, 10)
		}

		_ = writer.Write([]string{
			log.CreatedAt.Format(time.RFC3339),
			actor,
			log.Action,
			log.ResourceType,
			log.ResourceID,
			detailString(log.Details),
		})
	}

	writer.Flush()
	return writer.Error()
}

func detailString(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, "; ")
}
