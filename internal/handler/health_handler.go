// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"telemetry-bridge/internal/config"
	"telemetry-bridge/internal/utils"
)

// Runner reports whether a background loop has stopped
type Runner interface {
	Done() <-chan struct{}
}

// HealthHandler handles health check requests
type HealthHandler struct {
	supervisor Runner
	status     StatusProvider
	config     *config.Config
	startedAt  time.Time
	logger     *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(supervisor Runner, status StatusProvider, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		supervisor: supervisor,
		status:     status,
		config:     config,
		startedAt:  time.Now(),
		logger:     utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck performs general health check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).String(),
		Checks:    make(map[string]CheckResult),
	}

	if h.running() {
		health.Checks["supervisor"] = CheckResult{
			Status:  "healthy",
			Message: "Connection supervisor running",
		}
	} else {
		health.Status = "unhealthy"
		health.Checks["supervisor"] = CheckResult{
			Status:  "unhealthy",
			Message: "Connection supervisor stopped",
		}
	}

	status := h.status.Snapshot()
	device := CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"state":           status.State.String(),
			"since":           status.Since,
			"frames_decoded":  status.Counters.FramesDecoded,
			"frames_rejected": status.Counters.FramesRejected,
		},
	}
	if status.Device != nil {
		device.Data["device"] = status.Device.Handle
	}
	if status.LastError != "" {
		device.Message = status.LastError
	}
	health.Checks["device"] = device

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		h.logger.Warn("Health check failed")
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck reports whether the bridge is processing events
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.running() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "connection supervisor not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck reports that the process can respond
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) running() bool {
	select {
	case <-h.supervisor.Done():
		return false
	default:
		return true
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
