package api

import (
	"context"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/mw"
	"postpartum-htn-backend/internal/store"
	"postpartum-htn-backend/internal/workflow"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *workflow.Engine
	store   store.Store
	webpush *webpush.Options
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler creates a new API handler. timeout bounds the store work of one request.
func NewHandler(engine *workflow.Engine, s store.Store, webpushOptions *webpush.Options, timeout time.Duration, logger *zap.Logger) *Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:  engine,
		store:   s,
		webpush: webpushOptions,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *Handler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// actor returns the caller, or an empty actor that the workflow rejects.
func actor(c *gin.Context) workflow.Actor {
	id, ok := mw.IdentityFrom(c)
	if !ok {
		return workflow.Actor{}
	}
	return workflow.Actor{ID: id.UserID, Role: id.Role}
}

// fail writes err with the status its classification maps to, so clients can tell
// "fix your input" from "try again".
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":     err.Error(),
		"code":      apperr.CodeOf(err),
		"retryable": apperr.Retryable(err),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":     msg,
		"code":      apperr.CodeInvalidInput,
		"retryable": false,
	})
}
