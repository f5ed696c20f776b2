package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/newsletter-engine/internal/domain"
)

type NotificationService interface {
	Ingest(ctx context.Context, headers map[string]string, body []byte) (*domain.InboundNotification, error)
	GetByID(ctx context.Context, id string) (*domain.InboundNotification, error)
}

type SNSHandler struct {
	service NotificationService
}

func NewSNSHandler(service NotificationService) (*SNSHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &SNSHandler{service: service}, nil
}

func RegisterSNSRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewSNSHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/sns/notifications", h.ReceiveNotification)
	v1.Get("/sns/notifications/:id", h.GetNotification)

	return nil
}

type notificationResponse struct {
	ID              string     `json:"id"`
	State           string     `json:"state"`
	AddedAt         time.Time  `json:"addedAt"`
	LastProcessedAt *time.Time `json:"lastProcessedAt,omitempty"`
	ProcessingError *string    `json:"processingError,omitempty"`
}

// ReceiveNotification stores the SNS POST as-is. SNS sends its JSON with a
// text/plain content type, so the raw body is used rather than BodyParser.
func (h *SNSHandler) ReceiveNotification(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)

	notification, err := h.service.Ingest(c.UserContext(), requestHeaders(c), body)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(notification))
}

func (h *SNSHandler) GetNotification(c *fiber.Ctx) error {
	notification, err := h.service.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func requestHeaders(c *fiber.Ctx) map[string]string {
	raw := c.GetReqHeaders()
	headers := make(map[string]string, len(raw))
	for name, values := range raw {
		headers[name] = strings.Join(values, ",")
	}
	return headers
}

func toNotificationResponse(n *domain.InboundNotification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:              n.ID,
		State:           n.State.String(),
		AddedAt:         n.AddedAt,
		LastProcessedAt: n.LastProcessedAt,
		ProcessingError: n.ProcessingError,
	}
}
