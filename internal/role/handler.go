package role

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler contains dependencies for handling role endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// List returns the seeded roles with their permissions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.svc.ListRolePermissions(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Errorw("list roles failed", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
		return
	}
	_ = json.NewEncoder(w).Encode(roles)
}
