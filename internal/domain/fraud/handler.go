package fraud

import (
	"context"
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

type pairRequest struct {
	UserID        uuid.UUID `json:"user_id" validate:"required"`
	SourceAddress string    `json:"source_address" validate:"required,max=255"`
}

// Clear handles POST /api/admin/rate-limits/clear
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.pairAction(w, r, h.svc.ClearBlock)
}

// Block handles POST /api/admin/rate-limits/block
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	h.pairAction(w, r, h.svc.BlockPermanently)
}

func (h *Handler) pairAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, adminID, userID uuid.UUID, sourceAddress string) error) {
	var req pairRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.Validation(r.Context(), w, errs)
		return
	}

	if err := fn(r.Context(), middleware.GetUserID(r.Context()), req.UserID, req.SourceAddress); err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.NoContent(w)
}

// Blocked handles GET /api/admin/rate-limits
func (h *Handler) Blocked(w http.ResponseWriter, r *http.Request) {
	states, err := h.svc.ListBlocked(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, states)
}

// Logs handles GET /api/admin/fraud-logs
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := LogFilters{SourceAddress: q.Get("source_address"), SuspiciousOnly: q.Get("suspicious") == "true"}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "invalid user_id")
			return
		}
		f.UserID = &id
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(w, "invalid since, expected RFC3339")
			return
		}
		f.Since = &since
	}

	entries, err := h.svc.ListLogs(r.Context(), f)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Page(w, entries, len(entries), f.Limit, f.Offset)
}

// AdminRoutes returns rate limit administration routes.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/rate-limits", h.Blocked)
	r.Post("/rate-limits/clear", h.Clear)
	r.Post("/rate-limits/block", h.Block)
	r.Get("/fraud-logs", h.Logs)
	return r
}
