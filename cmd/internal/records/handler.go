package records

import (
	"errors"
	"log/slog"
	"net/http"

	"calcsync/cmd/internal/auth/session"
	"calcsync/cmd/internal/httpjson"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the record routes. It must be mounted behind the auth
// middleware that places the user id in the request context.
type Handler struct {
	svc          *Service
	log          *slog.Logger
	maxBodyBytes int64
}

func NewHandler(svc *Service, log *slog.Logger, maxBodyBytes int64) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log, maxBodyBytes: maxBodyBytes}
}

// Routes registers the record endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/single/data", h.listSingle)
	r.Post("/single/data", h.saveSingle)
	r.Get("/pro/data", h.listPro)
	r.Post("/pro/data", h.savePro)
	r.Get("/broker/accounts", h.listBroker)
	r.Post("/broker/accounts", h.saveBroker)
	r.Put("/broker/accounts/{id}", h.updateBroker)
	r.Delete("/broker/accounts/{id}", h.deleteBroker)
}

func (h *Handler) listSingle(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListSingle(r.Context(), userID)
	if err != nil {
		h.fail(w, "records.list.single", err)
		return
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Payload())
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) saveSingle(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var in SingleInput
	if err := httpjson.Decode(w, r, h.maxBodyBytes, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	rec, err := h.svc.SaveSingle(r.Context(), userID, in)
	if err != nil {
		h.fail(w, "records.save.single", err)
		return
	}
	httpjson.Write(w, http.StatusOK, rec.Payload())
}

func (h *Handler) listPro(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListPro(r.Context(), userID)
	if err != nil {
		h.fail(w, "records.list.pro", err)
		return
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Payload())
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) savePro(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var in ProInput
	if err := httpjson.Decode(w, r, h.maxBodyBytes, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	rec, err := h.svc.SavePro(r.Context(), userID, in)
	if err != nil {
		h.fail(w, "records.save.pro", err)
		return
	}
	httpjson.Write(w, http.StatusOK, rec.Payload())
}

func (h *Handler) listBroker(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListBroker(r.Context(), userID)
	if err != nil {
		h.fail(w, "records.list.broker", err)
		return
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Payload())
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) saveBroker(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var in BrokerInput
	if err := httpjson.Decode(w, r, h.maxBodyBytes, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	rec, err := h.svc.SaveBroker(r.Context(), userID, in)
	if err != nil {
		h.fail(w, "records.save.broker", err)
		return
	}
	httpjson.Write(w, http.StatusOK, rec.Payload())
}

func (h *Handler) updateBroker(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var in BrokerInput
	if err := httpjson.Decode(w, r, h.maxBodyBytes, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	rec, err := h.svc.UpdateBroker(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, "records.update.broker", err)
		return
	}
	httpjson.Write(w, http.StatusOK, rec.Payload())
}

func (h *Handler) deleteBroker(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteBroker(r.Context(), userID, id); err != nil {
		h.fail(w, "records.delete.broker", err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "account deleted", "id": id})
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := session.UserIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return "", false
	}
	return userID, true
}

func (h *Handler) fail(w http.ResponseWriter, event string, err error) {
	var ve ValidationError
	switch {
	case errors.As(err, &ve):
		httpjson.Error(w, http.StatusBadRequest, "invalid_request", ve.Field+" "+ve.Msg)
	case errors.Is(err, ErrNotFound):
		httpjson.Error(w, http.StatusNotFound, "not_found", "record not found")
	default:
		h.log.Error(event+".fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
