package quotes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Handler exposes quotes over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers quote routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Put("/", h.update)
		r.Get("/breakdown", h.breakdown)
		r.Get("/what-if", h.whatIf)
		r.Post("/transitions", h.transition)
		r.Post("/duplicate", h.duplicate)
		r.Post("/resync-snapshot", h.resync)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	promiseID, err := strconv.ParseInt(q.Get("promise_id"), 10, 64)
	if err != nil || promiseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Promise", "promise_id must be a positive integer")
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	items, meta, err := h.service.List(r.Context(), promiseID, page, perPage)
	if err != nil {
		h.fail(w, "list quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "meta": meta})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var p Payload
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	res, err := h.service.Create(r.Context(), p, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.fail(w, "create quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var p Payload
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	res, err := h.service.Update(r.Context(), id, p)
	if err != nil {
		h.fail(w, "update quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) breakdown(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	b, err := h.service.Breakdown(r.Context(), id)
	if err != nil {
		h.fail(w, "quote breakdown", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) whatIf(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	scenarios, err := h.service.WhatIf(r.Context(), id)
	if err != nil {
		h.fail(w, "quote what-if", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.ValidationResult{"to": "must be one of draft published en_cierre autorizada"}.Err())
		return
	}
	q, err := h.service.Transition(r.Context(), id, req.To, r.Header.Get("X-Actor"))
	if err != nil {
		h.fail(w, "transition quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) duplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req DuplicateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.ValidationResult{"name": "required"}.Err())
		return
	}
	res, err := h.service.Duplicate(r.Context(), id, req.Name)
	if err != nil {
		h.fail(w, "duplicate quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	q, err := h.service.ResyncSnapshotFromCatalog(r.Context(), id)
	if err != nil {
		h.fail(w, "resync quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if shared.KindOf(err) == "" {
		h.logger.Error(msg, slog.Any("error", err))
	} else {
		h.logger.Warn(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func quoteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "quote id must be a positive integer")
		return 0, false
	}
	return id, true
}
