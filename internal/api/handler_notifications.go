package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/store"
)

// ListNotifications handles GET /api/notifications?role=&patient_id=&unacknowledged=true.
func (h *Handler) ListNotifications(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	role := model.Role(c.Query("role"))
	if role != "" && !role.Valid() {
		badRequest(c, "unknown role "+string(role))
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	notes, err := h.engine.Notifications(ctx, store.NotificationFilter{
		Role:           role,
		PatientID:      c.Query("patient_id"),
		Unacknowledged: c.Query("unacknowledged") == "true",
		Limit:          limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

// AcknowledgeNotification handles POST /api/notifications/:id/acknowledge.
func (h *Handler) AcknowledgeNotification(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.engine.AcknowledgeNotification(ctx, actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
