package handler

import (
	"net/http"
	"strconv"
	"time"

	"shopsphere/internal/config"
	"shopsphere/internal/middleware"
	"shopsphere/internal/repository"
	"shopsphere/internal/usecase"

	"github.com/labstack/echo/v4"
)

type CouponHandler struct {
	uc *usecase.CouponUsecase
}

func NewCouponHandler(uc *usecase.CouponUsecase) *CouponHandler {
	return &CouponHandler{uc: uc}
}

func (h *CouponHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	//公開：検証（状態を変えない）とオファー一覧
	e.POST("/coupons/validate", h.validate)
	e.GET("/coupons/offers", h.offers)

	//管理者CRUD
	mws := []echo.MiddlewareFunc{
		middleware.AuthJWT(cfg),
		middleware.ActiveUserGuard(userRepo),
		middleware.AdminRoleGuard(),
	}
	e.GET("/coupons", h.list, mws...)
	e.POST("/coupons", h.create, mws...)
	e.GET("/coupons/:id", h.get, mws...)
	e.PUT("/coupons/:id", h.update, mws...)
	e.DELETE("/coupons/:id", h.remove, mws...)
}

type ValidateCouponRequest struct {
	Code       string  `json:"code"`
	OrderTotal float64 `json:"orderTotal"`
}

func (h *CouponHandler) validate(c echo.Context) error {
	var req ValidateCouponRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Validate(c.Request().Context(), usecase.ValidateCouponInput{
		Code:     req.Code,
		Subtotal: req.OrderTotal,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CouponHandler) offers(c echo.Context) error {
	out, err := h.uc.ListOffers(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

type UpsertCouponRequest struct {
	Code           string     `json:"code"`
	Type           string     `json:"type"`
	Value          float64    `json:"value"`
	MinOrderAmount float64    `json:"minOrderAmount"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	UsageLimit     *int64     `json:"usageLimit"`
	IsActive       *bool      `json:"isActive"`
}

func (r UpsertCouponRequest) toInput() usecase.UpsertCouponInput {
	return usecase.UpsertCouponInput{
		Code:           r.Code,
		Type:           r.Type,
		Value:          r.Value,
		MinOrderAmount: r.MinOrderAmount,
		ExpiresAt:      r.ExpiresAt,
		UsageLimit:     r.UsageLimit,
		IsActive:       r.IsActive,
	}
}

func (h *CouponHandler) list(c echo.Context) error {
	out, err := h.uc.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CouponHandler) get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CouponHandler) create(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req UpsertCouponRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Create(c.Request().Context(), adminID, req.toInput())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *CouponHandler) update(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req UpsertCouponRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Update(c.Request().Context(), adminID, id, req.toInput())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CouponHandler) remove(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.Delete(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "coupon deleted"})
}
