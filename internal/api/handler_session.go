package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/workflow"
)

var errMissingBP = errors.New("either bp or both systolic and diastolic are required")

type caseOperation func(c *workflow.Case, gc *gin.Context) (*workflow.Outcome, error)

// runCase executes one case operation and writes its outcome.
func (h *Handler) runCase(status int, fn caseOperation) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := h.ctx(c)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		out, err := fn(h.engine.Case(c.Param("id")), c)
		if err != nil {
			if !c.IsAborted() {
				h.fail(c, err)
			}
			return
		}
		c.JSON(status, out)
	}
}

// StartSession handles POST /api/patients/:id/session.
func (h *Handler) StartSession(c *gin.Context) {
	h.runCase(http.StatusCreated, func(cs *workflow.Case, gc *gin.Context) (*workflow.Outcome, error) {
		return cs.StartSession(gc.Request.Context(), actor(gc))
	})(c)
}

type selectAlgorithmRequest struct {
	Algorithm string `json:"algorithm" binding:"required"`
}

// SelectAlgorithm handles POST /api/patients/:id/session/algorithm.
func (h *Handler) SelectAlgorithm(c *gin.Context) {
	h.runCase(http.StatusOK, func(cs *workflow.Case, gc *gin.Context) (*workflow.Outcome, error) {
		var req selectAlgorithmRequest
		if err := gc.ShouldBindJSON(&req); err != nil {
			badRequest(gc, err.Error())
			return nil, err
		}
		a, err := clinical.ParseAlgorithm(req.Algorithm)
		if err != nil {
			badRequest(gc, err.Error())
			return nil, err
		}
		return cs.SelectAlgorithm(gc.Request.Context(), actor(gc), a)
	})(c)
}

type orderDoseRequest struct {
	AdministerNow bool `json:"administer_now"`
}

// OrderDose handles POST /api/patients/:id/session/doses.
func (h *Handler) OrderDose(c *gin.Context) {
	h.runCase(http.StatusCreated, func(cs *workflow.Case, gc *gin.Context) (*workflow.Outcome, error) {
		var req orderDoseRequest
		if gc.Request.ContentLength != 0 {
			if err := gc.ShouldBindJSON(&req); err != nil {
				badRequest(gc, err.Error())
				return nil, err
			}
		}
		return cs.OrderNextDose(gc.Request.Context(), actor(gc), req.AdministerNow)
	})(c)
}

// AdministerDose handles POST /api/patients/:id/medications/:dose_id/administer.
func (h *Handler) AdministerDose(c *gin.Context) {
	h.runCase(http.StatusOK, func(cs *workflow.Case, gc *gin.Context) (*workflow.Outcome, error) {
		return cs.AdministerMedication(gc.Request.Context(), actor(gc), gc.Param("dose_id"))
	})(c)
}

// AcknowledgeSession handles POST /api/patients/:id/session/acknowledge.
func (h *Handler) AcknowledgeSession(c *gin.Context) {
	h.runCase(http.StatusOK, func(cs *workflow.Case, gc *gin.Context) (*workflow.Outcome, error) {
		return cs.AcknowledgeSession(gc.Request.Context(), actor(gc))
	})(c)
}

// ResolveSession handles POST /api/patients/:id/session/resolve.
func (h *Handler) ResolveSession(c *gin.Context) {
	h.runCase(http.StatusOK, func(cs *workflow.Case, gc *gin.Context) (*workflow.Outcome, error) {
		return cs.ResolveSession(gc.Request.Context(), actor(gc))
	})(c)
}

type escalateRequest struct {
	Reason string `json:"reason"`
}

// EscalateSession handles POST /api/patients/:id/session/escalate.
func (h *Handler) EscalateSession(c *gin.Context) {
	h.runCase(http.StatusOK, func(cs *workflow.Case, gc *gin.Context) (*workflow.Outcome, error) {
		var req escalateRequest
		if gc.Request.ContentLength != 0 {
			if err := gc.ShouldBindJSON(&req); err != nil {
				badRequest(gc, err.Error())
				return nil, err
			}
		}
		return cs.EscalateSession(gc.Request.Context(), actor(gc), req.Reason)
	})(c)
}
