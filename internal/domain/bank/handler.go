package bank

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quizarena/economy-api/internal/middleware"
	"github.com/quizarena/economy-api/internal/pkg/errorhandler"
	"github.com/quizarena/economy-api/internal/pkg/response"
	"github.com/quizarena/economy-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /api/v1/bank/deposits
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateDepositRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	d, err := h.svc.CreateDeposit(r.Context(), userID, req.Coins, req.BonusCoins)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, d)
}

// List handles GET /api/v1/bank/deposits
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var status *Status
	if v := r.URL.Query().Get("status"); v != "" {
		s := Status(v)
		switch s {
		case StatusActive, StatusMatured, StatusCompleted, StatusCancelled:
		default:
			response.BadRequest(w, "invalid status")
			return
		}
		status = &s
	}

	ds, err := h.svc.List(r.Context(), userID, status)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, ds)
}

// Get handles GET /api/v1/bank/deposits/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, depositID, ok := ids(w, r)
	if !ok {
		return
	}

	d, err := h.svc.Get(r.Context(), userID, depositID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, DepositResponse{Deposit: *d, Quote: h.svc.QuoteOf(d)})
}

// Transactions handles GET /api/v1/bank/deposits/{id}/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, depositID, ok := ids(w, r)
	if !ok {
		return
	}

	txs, err := h.svc.Transactions(r.Context(), userID, depositID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, txs)
}

// WithdrawEarly handles POST /api/v1/bank/deposits/{id}/withdraw-early
func (h *Handler) WithdrawEarly(w http.ResponseWriter, r *http.Request) {
	userID, depositID, ok := ids(w, r)
	if !ok {
		return
	}

	res, err := h.svc.WithdrawEarly(r.Context(), userID, depositID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, res)
}

// Withdraw handles POST /api/v1/bank/deposits/{id}/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, depositID, ok := ids(w, r)
	if !ok {
		return
	}

	res, err := h.svc.WithdrawMatured(r.Context(), userID, depositID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, res)
}

// Lock handles POST /api/admin/deposits/{id}/lock
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

// Unlock handles POST /api/admin/deposits/{id}/unlock
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	depositID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid deposit id")
		return
	}

	d, err := h.svc.SetLocked(r.Context(), middleware.GetUserID(r.Context()), depositID, locked)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, d)
}

func ids(w http.ResponseWriter, r *http.Request) (userID, depositID uuid.UUID, ok bool) {
	userID = middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	depositID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid deposit id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, depositID, true
}

// Routes returns the player deposit routes.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/transactions", h.Transactions)
	r.Post("/{id}/withdraw-early", h.WithdrawEarly)
	r.Post("/{id}/withdraw", h.Withdraw)
	return r
}

// AdminRoutes returns deposit administration routes.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/lock", h.Lock)
	r.Post("/{id}/unlock", h.Unlock)
	return r
}
