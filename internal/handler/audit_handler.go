package handler

import (
	"net/http"
	"strconv"

	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
)

type AuditHandler struct {
	audit *service.AuditService
}

func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, meta, err := h.audit.Query(r.Context(), model.AuditQuery{
		Action:  q.Get("action"),
		ActorID: q.Get("actor_id"),
		Status:  q.Get("status"),
		From:    q.Get("from"),
		To:      q.Get("to"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, entries, &meta)
}
