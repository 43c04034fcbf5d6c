package voucher

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quizarena/economy-api/internal/domain/fraud"
	"github.com/quizarena/economy-api/internal/middleware"
	"github.com/quizarena/economy-api/internal/pkg/errorhandler"
	"github.com/quizarena/economy-api/internal/pkg/response"
	"github.com/quizarena/economy-api/internal/pkg/validator"
)

type Handler struct {
	svc      *Service
	throttle *fraud.Throttle
}

func NewHandler(svc *Service, throttle *fraud.Throttle) *Handler {
	return &Handler{svc: svc, throttle: throttle}
}

// Redeem handles POST /api/v1/vouchers/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	if !h.throttle.Allow(r.Context(), userID) {
		response.TooManyRequests(w, "", 0)
		return
	}

	var req RedeemInput
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	rewards, err := h.svc.Redeem(r.Context(), RedeemRequest{
		UserID:        userID,
		Code:          req.Code,
		SourceAddress: middleware.ClientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, RedeemResponse{Coins: rewards.Coins, BonusCoins: rewards.BonusCoins, Powerups: rewards.Powerups})
}

// Create handles POST /api/admin/vouchers
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	v, err := h.svc.Create(r.Context(), CreateParams{
		Code:             req.Code,
		Description:      req.Description,
		RewardCoins:      req.RewardCoins,
		RewardBonusCoins: req.RewardBonusCoins,
		Powerups:         req.Powerups,
		MaxRedemptions:   req.MaxRedemptions,
		MaxPerUser:       req.MaxPerUser,
		ValidFrom:        req.ValidFrom,
		ValidUntil:       req.ValidUntil,
		CreatedBy:        middleware.GetUserID(r.Context()),
	})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, v)
}

// List handles GET /api/admin/vouchers
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	vs, err := h.svc.List(r.Context(), ListFilters{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Page(w, vs, len(vs), limit, offset)
}

// Get handles GET /api/admin/vouchers/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid voucher id")
		return
	}
	v, err := h.svc.Get(r.Context(), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, v)
}

// SetActive handles PATCH /api/admin/vouchers/{id}/active
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid voucher id")
		return
	}
	var req SetActiveInput
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	if err := h.svc.SetActive(r.Context(), middleware.GetUserID(r.Context()), id, *req.Active); err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.NoContent(w)
}

// Redemptions handles GET /api/admin/vouchers/{id}/redemptions
func (h *Handler) Redemptions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid voucher id")
		return
	}
	limit, offset := pagination(r)
	reds, err := h.svc.Redemptions(r.Context(), id, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Page(w, reds, len(reds), limit, offset)
}

// Inventory handles GET /api/v1/vouchers/powerups
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	inv, err := h.svc.Inventory(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, inv)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Routes returns player voucher routes.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/redeem", h.Redeem)
	r.Get("/powerups", h.Inventory)
	return r
}

// AdminRoutes returns voucher management routes.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/active", h.SetActive)
	r.Get("/{id}/redemptions", h.Redemptions)
	return r
}
