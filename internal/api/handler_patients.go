package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"postpartum-htn-backend/internal/parse"
	"postpartum-htn-backend/internal/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, "limit must be a positive integer")
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

type createPatientRequest struct {
	RoomNumber *string `json:"room_number"`
	HasAsthma  bool    `json:"has_asthma"`
}

// CreatePatient handles POST /api/patients.
func (h *Handler) CreatePatient(c *gin.Context) {
	var req createPatientRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	p, err := h.engine.CreatePatient(ctx, actor(c), workflow.NewPatient{RoomNumber: req.RoomNumber, HasAsthma: req.HasAsthma})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ListPatients handles GET /api/patients[?emergency=true].
func (h *Handler) ListPatients(c *gin.Context) {
	emergencyOnly := c.Query("emergency") == "true"

	ctx, cancel := h.ctx(c)
	defer cancel()

	patients, err := h.engine.Patients(ctx, emergencyOnly)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, patients)
}

// GetPatient handles GET /api/patients/:id.
func (h *Handler) GetPatient(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	p, err := h.engine.Patient(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetCase handles GET /api/patients/:id/case.
func (h *Handler) GetCase(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	view, err := h.engine.Case(c.Param("id")).View(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetTimer handles GET /api/patients/:id/timer.
func (h *Handler) GetTimer(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	view, err := h.engine.Case(c.Param("id")).View(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timer":             view.ActiveTimer,
		"remaining_seconds": view.RemainingSeconds,
		"expired":           view.TimerExpired,
	})
}

type recordReadingRequest struct {
	Systolic              *int    `json:"systolic"`
	Diastolic             *int    `json:"diastolic"`
	BP                    string  `json:"bp"`
	IsPositionedCorrectly *bool   `json:"is_positioned_correctly"`
	Notes                 *string `json:"notes"`
}

func (r recordReadingRequest) input() (workflow.ReadingInput, error) {
	in := workflow.ReadingInput{PositionedCorrectly: r.IsPositionedCorrectly, Notes: r.Notes}
	if r.BP != "" {
		s, d, err := parse.ParseBP(r.BP)
		if err != nil {
			return in, err
		}
		in.Systolic, in.Diastolic = s, d
		return in, nil
	}
	if r.Systolic == nil || r.Diastolic == nil {
		return in, errMissingBP
	}
	in.Systolic, in.Diastolic = *r.Systolic, *r.Diastolic
	return in, nil
}

// RecordReading handles POST /api/patients/:id/readings.
func (h *Handler) RecordReading(c *gin.Context) {
	var req recordReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	out, err := h.engine.Case(c.Param("id")).RecordReading(ctx, actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// ListReadings handles GET /api/patients/:id/readings.
func (h *Handler) ListReadings(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	readings, err := h.engine.Readings(ctx, c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, readings)
}

// ListAudit handles GET /api/patients/:id/audit.
func (h *Handler) ListAudit(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	entries, err := h.engine.AuditTrail(ctx, c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
