package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"postpartum-htn-backend/internal/clinical"
)

type thresholdsResponse struct {
	SevereSystolic     int `json:"severe_systolic"`
	SevereDiastolic    int `json:"severe_diastolic"`
	TargetSystolicMin  int `json:"target_systolic_min"`
	TargetSystolicMax  int `json:"target_systolic_max"`
	TargetDiastolicMin int `json:"target_diastolic_min"`
	TargetDiastolicMax int `json:"target_diastolic_max"`
}

// GetProtocols handles GET /api/protocols.
func (h *Handler) GetProtocols(c *gin.Context) {
	protocols := make([]clinical.Protocol, 0, len(clinical.Algorithms))
	for _, a := range clinical.Algorithms {
		p, err := clinical.ProtocolFor(a)
		if err != nil {
			h.fail(c, err)
			return
		}
		protocols = append(protocols, p)
	}

	c.JSON(http.StatusOK, gin.H{
		"protocols": protocols,
		"thresholds": thresholdsResponse{
			SevereSystolic:     clinical.SevereSystolic,
			SevereDiastolic:    clinical.SevereDiastolic,
			TargetSystolicMin:  clinical.TargetSystolicMin,
			TargetSystolicMax:  clinical.TargetSystolicMax,
			TargetDiastolicMin: clinical.TargetDiastolicMin,
			TargetDiastolicMax: clinical.TargetDiastolicMax,
		},
		"recheck_minutes":                 int(clinical.RecheckInterval.Minutes()),
		"administration_deadline_minutes": int(clinical.AdministrationDeadline.Minutes()),
	})
}

// GetProtocol handles GET /api/protocols/:algorithm.
func (h *Handler) GetProtocol(c *gin.Context) {
	a, err := clinical.ParseAlgorithm(c.Param("algorithm"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	p, err := clinical.ProtocolFor(a)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
