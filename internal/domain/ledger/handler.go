package ledger

import (
	"net/http"
	"strconv"
	"time"

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

// Balance handles GET /api/v1/wallet/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	b, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, NewBalanceResponse(b))
}

// Transactions handles GET /api/v1/wallet/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := pagination(r)
	txs, err := h.svc.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Page(w, txs, len(txs), limit, offset)
}

// QuizReward handles POST /internal/quiz/rewards
func (h *Handler) QuizReward(w http.ResponseWriter, r *http.Request) {
	var req QuizRewardRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	// a retried session returns the original credit
	t, created, err := h.svc.CreditOnce(r.Context(), Entry{
		UserID:        req.UserID,
		Coins:         req.Coins,
		BonusCoins:    req.BonusCoins,
		Type:          TxTypeQuizReward,
		ReferenceType: "quiz_session",
		ReferenceID:   req.SessionID,
		Description:   "Quiz reward",
	})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	if !created {
		response.OK(w, t)
		return
	}
	response.Created(w, t)
}

// Purchase handles POST /internal/purchases
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	t, err := h.svc.Debit(r.Context(), Entry{
		UserID:        req.UserID,
		Coins:         req.Coins,
		BonusCoins:    req.BonusCoins,
		Type:          TxTypePurchase,
		ReferenceType: "order",
		ReferenceID:   req.OrderID,
		Description:   "Purchase",
	})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, t)
}

// Adjust handles POST /api/admin/ledger/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	adminID := middleware.GetUserID(r.Context())
	t, err := h.svc.Adjust(r.Context(), adminID, req.UserID, req.CoinsDelta, req.BonusCoinsDelta, req.Reason)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, t)
}

// Search handles GET /api/admin/ledger/transactions
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := SearchFilters{}
	filters.Limit, filters.Offset = pagination(r)

	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "invalid user_id")
			return
		}
		filters.UserID = &id
	}
	if v := q.Get("type"); v != "" {
		t := TxType(v)
		filters.Type = &t
	}
	if v := q.Get("reference_type"); v != "" {
		filters.ReferenceType = &v
	}
	if v := q.Get("reference_id"); v != "" {
		filters.ReferenceID = &v
	}
	for key, dst := range map[string]**time.Time{"date_from": &filters.DateFrom, "date_to": &filters.DateTo} {
		if v := q.Get(key); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.BadRequest(w, "invalid "+key+", expected RFC3339")
				return
			}
			*dst = &ts
		}
	}

	txs, err := h.svc.SearchTransactions(r.Context(), filters)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Page(w, txs, len(txs), filters.Limit, filters.Offset)
}

// Replay handles GET /api/admin/ledger/users/{userID}/replay
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	res, err := h.svc.Replay(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, res)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Routes returns the player wallet routes.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	return r
}

// InternalRoutes registers the routes used by the quiz and shop services on r.
func (h *Handler) InternalRoutes(r chi.Router) {
	r.Post("/quiz/rewards", h.QuizReward)
	r.Post("/purchases", h.Purchase)
}

// AdminRoutes returns ledger administration routes.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/adjust", h.Adjust)
	r.Get("/transactions", h.Search)
	r.Get("/users/{userID}/replay", h.Replay)
	return r
}
