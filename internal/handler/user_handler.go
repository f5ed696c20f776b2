package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/service"
)

type UserService interface {
	Create(ctx context.Context, in service.CreateUserInput) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type ReferralService interface {
	EnsureReferralCode(ctx context.Context, userID string) (*domain.User, error)
	Summary(ctx context.Context, userID string) (*service.ReferralSummary, error)
}

type UserHandler struct {
	users     UserService
	referrals ReferralService
}

func NewUserHandler(users UserService, referrals ReferralService) (*UserHandler, error) {
	if users == nil {
		return nil, fmt.Errorf("user service is required")
	}
	if referrals == nil {
		return nil, fmt.Errorf("referral service is required")
	}
	return &UserHandler{users: users, referrals: referrals}, nil
}

func RegisterUserRoutes(router fiber.Router, users UserService, referrals ReferralService) error {
	h, err := NewUserHandler(users, referrals)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/users", h.CreateUser)
	v1.Get("/users/:id", h.GetUser)
	v1.Get("/users/:id/referral", h.GetReferralSummary)
	v1.Post("/users/:id/referral-code", h.EnsureReferralCode)

	return nil
}

type createUserRequest struct {
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	ReferralCode string `json:"referralCode"`
	BestUser     bool   `json:"bestUser"`
}

type userResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	ReferralCode string    `json:"referralCode,omitempty"`
	ReferredByID *string   `json:"referredById,omitempty"`
	IsActive     bool      `json:"isActive"`
	BestUser     bool      `json:"bestUser"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

type referralSummaryResponse struct {
	UserID             string `json:"userId"`
	DisplayName        string `json:"displayName"`
	ReferralCode       string `json:"referralCode,omitempty"`
	ReferredCount      int    `json:"referredCount"`
	ActivatedReferrals int    `json:"activatedReferrals"`
	OpenedEmails       int    `json:"openedEmails"`
	Percentile         int    `json:"percentile"`
	Position           int    `json:"position"`
}

func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.users.Create(c.UserContext(), service.CreateUserInput{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		ReferralCode: req.ReferralCode,
		BestUser:     req.BestUser,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
}

func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.users.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toUserResponse(user))
}

func (h *UserHandler) GetReferralSummary(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return toHTTPError(err)
	}

	summary, err := h.referrals.Summary(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(referralSummaryResponse{
		UserID:             summary.UserID,
		DisplayName:        summary.DisplayName,
		ReferralCode:       summary.ReferralCode,
		ReferredCount:      summary.ReferredCount,
		ActivatedReferrals: summary.ActivatedReferrals,
		OpenedEmails:       summary.OpenedEmails,
		Percentile:         summary.Rank.Percentile,
		Position:           summary.Rank.Position,
	})
}

func (h *UserHandler) EnsureReferralCode(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return toHTTPError(err)
	}

	user, err := h.referrals.EnsureReferralCode(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"userId":       user.ID,
		"referralCode": user.ReferralCode,
	})
}

func toUserResponse(u *domain.User) userResponse {
	if u == nil {
		return userResponse{}
	}

	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ReferralCode: u.ReferralCode,
		ReferredByID: u.ReferredByID,
		IsActive:     u.IsActive,
		BestUser:     u.BestUser,
		CreatedAt:    u.CreatedAt,
	}
}
