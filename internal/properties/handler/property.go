package handler

import (
	"net/http"

	"staybook/internal/properties/service"
	"staybook/pkg/auth"
	apperrors "staybook/pkg/errors"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
	"staybook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type PropertyHandler struct {
	service service.PropertyService
	log     *logger.Logger
}

func NewPropertyHandler(service service.PropertyService, log *logger.Logger) *PropertyHandler {
	return &PropertyHandler{
		service: service,
		log:     log,
	}
}

func (h *PropertyHandler) ListWithRevenue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListWithRevenue", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	properties, total, err := h.service.ListWithRevenue(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListWithRevenue", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, properties, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListWithRevenue", "operation", "WritePaginated", "error", err)
	}
}

func (h *PropertyHandler) SetApproval(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.PropertyApprovalRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "SetApproval", "operation", "WriteError", "error", writeErr)
		}
		return
	}
	if req.IsApproved == nil {
		err := apperrors.Validation("Property approval validation failed", map[string]any{"error": "is_approved is required"})
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "SetApproval", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	property, err := h.service.SetApproval(r.Context(), ps.ByName("id"), *req.IsApproved)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "SetApproval", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, property); err != nil {
		h.log.Error("failed to write success response", "handler", "SetApproval", "operation", "WriteSuccess", "error", err)
	}
}

func (h *PropertyHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/admin/properties", auth.Guard(h.log, h.ListWithRevenue, model.UserTypeAdmin))
	router.PATCH("/api/v1/admin/properties/id/:id/approval", auth.Guard(h.log, h.SetApproval, model.UserTypeAdmin))
}
