package shopping

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/canasta/internal/common"
	"github.com/noah-isme/canasta/internal/lock"
	"github.com/noah-isme/canasta/internal/pricing"
	"github.com/noah-isme/canasta/internal/promotion"
	"github.com/noah-isme/canasta/internal/session"
)

// WarningItemNotFound is returned alongside a 200 when an item id is stale.
const WarningItemNotFound = "item_not_found"

// Handler exposes the shopping service over HTTP.
type Handler struct {
	Svc *Service
}

// Register mounts the session, tax and promotion routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/tax-rates", h.TaxRates)
	r.Post("/quote/tax", h.QuoteTax)
	r.Post("/promotions/evaluate", h.EvaluatePromotion)

	r.Route("/users/{ownerID}", func(u chi.Router) {
		u.Get("/history", h.History)
		u.Route("/session", func(s chi.Router) {
			s.Get("/", h.Current)
			s.Post("/", h.Start)
			s.Post("/complete", h.Complete)
			s.Post("/cancel", h.Cancel)
			s.Post("/items", h.AddItem)
			s.Delete("/items", h.ClearItems)
			s.Patch("/items/{itemID}", h.UpdateItem)
			s.Delete("/items/{itemID}", h.RemoveItem)
			s.Post("/items/{itemID}/increment", h.Increment)
			s.Post("/items/{itemID}/decrement", h.Decrement)
		})
	})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shopping service not configured", nil)
		return false
	}
	return true
}

// Current returns the in-progress session, or null when there is none.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	current, ok, err := h.Svc.Current(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		common.Data(w, http.StatusOK, nil)
		return
	}
	common.Data(w, http.StatusOK, current)
}

// History returns completed sessions, most recent first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	history, err := h.Svc.History(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, history)
}

// Start begins a session, optionally at a store.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload struct {
		StoreID *string `json:"storeId"`
	}
	if err := common.DecodeJSON(r, &payload, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	started, err := h.Svc.Start(r.Context(), chi.URLParam(r, "ownerID"), payload.StoreID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, started)
}

// Complete ends the active session and archives it.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	ended, err := h.Svc.End(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, ended)
}

// Cancel discards the active session.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	cancelled, err := h.Svc.Cancel(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, cancelled)
}

// AddItem adds a line item, starting a session when needed.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in session.AddItemInput
	if err := common.DecodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "ownerID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusCreated, res)
}

// UpdateItem applies a partial update to a line item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in session.UpdateItemInput
	if err := common.DecodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Svc.UpdateItem(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "itemID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, res)
}

// RemoveItem deletes a line item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, res)
}

// ClearItems empties the active session.
func (h *Handler) ClearItems(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.Svc.ClearItems(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, res)
}

// Increment adds one unit to a line item.
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.Svc.IncrementQuantity(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, res)
}

// Decrement removes one unit, dropping the line below one.
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.Svc.DecrementQuantity(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, res)
}

// TaxRates lists the ITBMS rate catalog.
func (h *Handler) TaxRates(w http.ResponseWriter, _ *http.Request) {
	common.Data(w, http.StatusOK, pricing.Rates())
}

// QuoteTax prices one line without a session.
func (h *Handler) QuoteTax(w http.ResponseWriter, r *http.Request) {
	var in QuoteInput
	if err := common.DecodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	quote, err := QuoteTax(in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, quote)
}

// EvaluatePromotion reports what a promotion would discount on a line.
func (h *Handler) EvaluatePromotion(w http.ResponseWriter, r *http.Request) {
	var in EvaluateInput
	if err := common.DecodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	var svc *Service
	if h != nil {
		svc = h.Svc
	}
	res, err := svc.EvaluatePromotion(in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

type mutationBody struct {
	Session *session.Session  `json:"session"`
	Item    *session.LineItem `json:"item,omitempty"`
	Removed bool              `json:"removed,omitempty"`
}

func writeMutation(w http.ResponseWriter, status int, res Mutation) {
	data := mutationBody{Item: res.Item, Removed: res.Removed}
	if res.Session.ID != "" {
		data.Session = &res.Session
	}
	body := map[string]any{"data": data}
	if !res.Found {
		body["warning"] = WarningItemNotFound
		status = http.StatusOK
	}
	common.JSON(w, status, body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *pricing.ValidationError
	var unsupported *promotion.UnsupportedPromotionError
	switch {
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", verr.Error(), map[string]string{"field": verr.Field})
	case errors.As(err, &unsupported):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNSUPPORTED_PROMOTION", unsupported.Error(), map[string]string{"type": string(unsupported.Kind)})
	case errors.Is(err, session.ErrNoActiveSession):
		common.JSONError(w, http.StatusConflict, "NO_ACTIVE_SESSION", err.Error(), nil)
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "SESSION_BUSY", "session is being modified, retry shortly", nil)
	default:
		var appErr *common.AppError
		if !errors.As(err, &appErr) && h != nil && h.Svc != nil {
			h.Svc.Logger.Error().Err(err).
				Str("owner_id", strings.TrimSpace(chi.URLParam(r, "ownerID"))).
				Msg("shopping request failed")
		}
		common.WriteError(w, err)
	}
}
