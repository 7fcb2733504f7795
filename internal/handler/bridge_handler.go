// internal/handler/bridge_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"telemetry-bridge/internal/model"
	"telemetry-bridge/internal/permission"
	"telemetry-bridge/internal/supervisor"
	"telemetry-bridge/internal/utils"
)

// StatusProvider exposes the supervisor's current status
type StatusProvider interface {
	Snapshot() supervisor.Status
}

// EventPoster delivers events to the supervisor
type EventPoster interface {
	Post(ev model.Event) bool
}

// PermissionPrompt answers pending permission requests
type PermissionPrompt interface {
	Pending() []permission.PendingRequest
	Decide(handle string, granted bool) error
}

// BridgeHandler serves connection status and operator actions
type BridgeHandler struct {
	status StatusProvider
	events EventPoster
	prompt PermissionPrompt
	logger *utils.ServiceLogger
}

// NewBridgeHandler creates a bridge handler. prompt is nil when access is
// decided automatically.
func NewBridgeHandler(status StatusProvider, events EventPoster, prompt PermissionPrompt, logger *zap.Logger) *BridgeHandler {
	return &BridgeHandler{
		status: status,
		events: events,
		prompt: prompt,
		logger: utils.NewServiceLogger(logger, "bridge-handler"),
	}
}

// RegisterRoutes registers bridge routes
func (h *BridgeHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)
	router.GET("/permissions", h.ListPermissions)
	router.POST("/permissions", h.DecidePermission)
	router.POST("/reset", h.Reset)
}

// StatusResponse is the payload of GET /status
type StatusResponse struct {
	supervisor.Status
	PendingPermissions []permission.PendingRequest `json:"pending_permissions"`
}

// PermissionDecisionRequest answers a pending prompt
type PermissionDecisionRequest struct {
	Handle  string `json:"handle" binding:"required"`
	Granted *bool  `json:"granted" binding:"required"`
}

// GetStatus returns the connection status
func (h *BridgeHandler) GetStatus(c *gin.Context) {
	response := StatusResponse{
		Status:             h.status.Snapshot(),
		PendingPermissions: h.pending(),
	}
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", response)
}

// ListPermissions returns requests waiting for an answer
func (h *BridgeHandler) ListPermissions(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Pending permissions retrieved successfully", h.pending())
}

// DecidePermission grants or denies a pending request
func (h *BridgeHandler) DecidePermission(c *gin.Context) {
	if h.prompt == nil {
		utils.ErrorResponse(c, http.StatusConflict, "Permissions are decided automatically", nil)
		return
	}

	var req PermissionDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.prompt.Decide(req.Handle, *req.Granted); err != nil {
		if errors.Is(err, permission.ErrNoPendingRequest) {
			utils.ErrorResponse(c, http.StatusNotFound, "No pending request for device", err)
			return
		}
		h.logger.Error("Failed to deliver permission decision", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to deliver decision", err)
		return
	}

	h.logger.Info("Permission decided",
		zap.String("device", req.Handle),
		zap.Bool("granted", *req.Granted),
	)
	utils.SuccessResponse(c, http.StatusOK, "Decision delivered", gin.H{
		"handle":  req.Handle,
		"granted": *req.Granted,
	})
}

// Reset asks the supervisor to leave the Faulted state
func (h *BridgeHandler) Reset(c *gin.Context) {
	if state := h.status.Snapshot().State; state != model.StateFaulted {
		utils.ErrorResponse(c, http.StatusConflict, "Connection is not faulted", errors.New("state is "+state.String()))
		return
	}

	if !h.events.Post(model.ResetRequested{}) {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Supervisor is not running", nil)
		return
	}

	h.logger.Info("Reset requested")
	utils.SuccessResponse(c, http.StatusAccepted, "Reset requested", nil)
}

func (h *BridgeHandler) pending() []permission.PendingRequest {
	if h.prompt == nil {
		return []permission.PendingRequest{}
	}
	return h.prompt.Pending()
}
