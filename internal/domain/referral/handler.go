package referral

import (
	"net/http"
	"strconv"

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

// Stats handles GET /api/v1/referrals/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	st, err := h.svc.Stats(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, st)
}

// Earnings handles GET /api/v1/referrals/earnings
func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	earnings, err := h.svc.Earnings(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Page(w, earnings, len(earnings), limit, offset)
}

// Register handles POST /internal/referrals
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	link, err := h.svc.Register(r.Context(), req.ReferredUserID, req.ReferrerUserID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, link)
}

// QuizCompleted handles POST /internal/quiz/completed
func (h *Handler) QuizCompleted(w http.ResponseWriter, r *http.Request) {
	var req QuizCompletedRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	res, err := h.svc.OnQuizCompleted(r.Context(), req.UserID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, res)
}

// Routes returns the player referral routes.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/stats", h.Stats)
	r.Get("/earnings", h.Earnings)
	return r
}

// InternalRoutes registers the referral routes used by other services on r.
func (h *Handler) InternalRoutes(r chi.Router) {
	r.Post("/referrals", h.Register)
	r.Post("/quiz/completed", h.QuizCompleted)
}
