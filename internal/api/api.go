package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notification-engine/internal/alerts"
	"notification-engine/internal/config"
	"notification-engine/internal/db"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
	"notification-engine/internal/orchestrator"
	"notification-engine/internal/otp"
)

// Enqueuer hands delivery jobs to the dispatch queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.DeliveryJob) (uuid.UUID, error)
}

type Handler struct {
	db        *db.DB
	otp       *otp.Service
	svc       *orchestrator.Service
	queue     Enqueuer
	evaluator *alerts.Evaluator
	logger    *logging.Logger
	config    config.Config
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients of the admin dashboard connect cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewRouter(database *db.DB, otpSvc *otp.Service, svc *orchestrator.Service, queue Enqueuer, evaluator *alerts.Evaluator, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.Default()
	h := &Handler{db: database, otp: otpSvc, svc: svc, queue: queue, evaluator: evaluator, logger: logger, config: cfg}

	api := r.Group(cfg.API.BasePath)
	{
		api.POST("/otp/issue", h.IssueOTP)
		api.POST("/otp/verify", h.VerifyOTP)
		api.POST("/notifications", h.SendNotification)
		api.POST("/notifications/group", h.RouteToGroups)
		api.GET("/notifications/user/:id", h.GetUserNotifications)
		api.GET("/notifications/:id", h.GetNotificationByID)
		api.GET("/delivery-records/:job_id", h.GetDeliveryRecord)
		api.POST("/alerts/trigger", h.TriggerAlerts)
	}

	r.GET("/ws", h.WebSocket)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (h *Handler) IssueOTP(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := h.otp.Issue(c.Request.Context(), req.Subject)
	if err != nil {
		h.logger.Errorf("Issue OTP failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue code"})
		return
	}

	// The code goes out through the delivery channel, never in the API
	// response.
	jobID, err := h.queue.Enqueue(c.Request.Context(), models.DeliveryJob{
		Kind:    models.JobOTPSend,
		Target:  req.Subject,
		Message: "Your verification code is " + code,
		Channel: models.ChannelGateway,
	})
	if err != nil {
		h.logger.Errorf("Dispatch OTP delivery failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch code"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_id": jobID})
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Code    string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.otp.Verify(c.Request.Context(), req.Subject, req.Code)
	if err != nil {
		h.logger.Errorf("Verify OTP failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification unavailable"})
		return
	}
	if !result.OK {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) SendNotification(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		h.logger.Errorf("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if event.UserID < 1 || event.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and type are required"})
		return
	}

	plan, err := h.svc.Send(c.Request.Context(), event)
	if err != nil {
		h.logger.Errorf("Send notification failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, plan)
}

func (h *Handler) RouteToGroups(c *gin.Context) {
	var req struct {
		Type string            `json:"type" binding:"required"`
		Data map[string]string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fanout, err := h.svc.RouteToGroups(c.Request.Context(), req.Type, req.Data)
	if err != nil {
		h.logger.Errorf("Group routing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, fanout)
}

func (h *Handler) GetUserNotifications(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil || userID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	notifications, err := h.db.GetNotificationsByUserID(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Errorf("Get notifications for user %d failed: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *Handler) GetNotificationByID(c *gin.Context) {
	id := c.Param("id")
	notification, err := h.db.GetNotificationByID(c.Request.Context(), id)
	if err == db.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Get notification %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, notification)
}

func (h *Handler) GetDeliveryRecord(c *gin.Context) {
	jobID := c.Param("job_id")
	record, err := h.db.GetDeliveryRecord(c.Request.Context(), jobID)
	if err == db.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "delivery record not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Get delivery record %s failed: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) TriggerAlerts(c *gin.Context) {
	result := h.evaluator.TriggerNow(c.Request.Context())
	h.logger.Infof("Manual alert pass: %d evaluated, %d fired", result.Evaluated, result.Fired)
	c.JSON(http.StatusOK, result)
}

// WebSocket upgrades the connection and registers it for in-app pushes until
// the client disconnects.
func (h *Handler) WebSocket(c *gin.Context) {
	userID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil || userID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed for user %d: %v", userID, err)
		return
	}

	h.svc.AddWebSocketConnection(userID, conn)
	h.logger.Infof("WebSocket connected for user %d", userID)

	go func() {
		defer func() {
			h.svc.RemoveWebSocketConnection(userID, conn)
			conn.Close()
			h.logger.Infof("WebSocket disconnected for user %d", userID)
		}()
		for {
			// Reads only detect disconnects; clients never send data.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
