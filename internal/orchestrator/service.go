// Package orchestrator decides, per event, which channels and recipients
// apply, builds dispatch jobs, and records delivery outcome. A single
// recipient or channel failure never aborts the rest of the fan-out.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"notification-engine/internal/logging"
	"notification-engine/internal/models"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	UpdateNotificationStatus(ctx context.Context, id, status string) error
	GetPreferencesByUserID(ctx context.Context, userID int) ([]models.Preference, error)
	GetActiveRoutingRules(ctx context.Context, notificationType string) ([]models.RoutingRule, error)
	GetTemplateByCode(ctx context.Context, code string) (models.Template, error)
	GetActiveTemplates(ctx context.Context) ([]models.Template, error)
}

// Enqueuer hands jobs to the dispatch queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.DeliveryJob) (uuid.UUID, error)
}

// EmailSender delivers the email channel. A nil sender downgrades email to a
// logged no-op.
type EmailSender interface {
	Send(to, subject, body string) error
}

// Plan reports what Send decided for one event.
type Plan struct {
	NotificationID uuid.UUID   `json:"notification_id"`
	Channels       []string    `json:"channels"`
	JobIDs         []uuid.UUID `json:"job_ids,omitempty"`
	Errors         []string    `json:"errors,omitempty"`
}

// Service is the notification orchestrator.
type Service struct {
	store  Store
	queue  Enqueuer
	email  EmailSender
	ws     *WebSocketManager
	logger *logging.Logger
}

func New(store Store, queue Enqueuer, email EmailSender, ws *WebSocketManager, logger *logging.Logger) *Service {
	return &Service{store: store, queue: queue, email: email, ws: ws, logger: logger}
}

// WS exposes the connection manager to the API layer.
func (s *Service) WS() *WebSocketManager {
	return s.ws
}

// AddWebSocketConnection registers a live connection for a user.
func (s *Service) AddWebSocketConnection(userID int, conn *websocket.Conn) {
	s.ws.AddConnection(userID, conn)
}

// RemoveWebSocketConnection drops a connection for a user.
func (s *Service) RemoveWebSocketConnection(userID int, conn *websocket.Conn) {
	s.ws.RemoveConnection(userID, conn)
}

// Send persists the notification and fans it out: in-app always, external
// channels per the user's preferences (all on when no preference rows
// exist).
func (s *Service) Send(ctx context.Context, event models.Event) (Plan, error) {
	notif := models.Notification{
		ID:        uuid.New(),
		UserID:    event.UserID,
		Type:      event.Type,
		Subject:   event.Subject,
		Body:      event.Body,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateNotification(ctx, notif); err != nil {
		return Plan{}, fmt.Errorf("failed to persist notification: %w", err)
	}

	plan := Plan{NotificationID: notif.ID}
	enabled := s.enabledChannels(ctx, event.UserID)

	// In-app delivery is unconditional for connected users.
	payload, _ := json.Marshal(map[string]string{
		"type":    event.Type,
		"subject": event.Subject,
		"body":    event.Body,
	})
	s.ws.SendToUser(event.UserID, payload)
	plan.Channels = append(plan.Channels, models.ChannelInApp)

	externalJobs := 0
	if enabled[models.ChannelGateway] && event.Target != "" {
		jobID, err := s.queue.Enqueue(ctx, models.DeliveryJob{
			Kind:          models.JobNotifyUser,
			Target:        event.Target,
			Message:       event.Subject + "\n" + event.Body,
			Channel:       models.ChannelGateway,
			CorrelationID: notif.ID.String(),
		})
		if err != nil {
			plan.Errors = append(plan.Errors, fmt.Sprintf("gateway: %v", err))
			s.logger.Errorf("Failed to enqueue gateway job for user %d: %v", event.UserID, err)
		} else {
			plan.Channels = append(plan.Channels, models.ChannelGateway)
			plan.JobIDs = append(plan.JobIDs, jobID)
			externalJobs++
		}
	}

	if enabled[models.ChannelEmail] && event.Email != "" {
		if s.email == nil {
			s.logger.Infof("Email channel unconfigured, skipping delivery to %s", event.Email)
		} else if err := s.email.Send(event.Email, event.Subject, event.Body); err != nil {
			plan.Errors = append(plan.Errors, fmt.Sprintf("email: %v", err))
			s.logger.Errorf("Failed to send email to %s: %v", event.Email, err)
		} else {
			plan.Channels = append(plan.Channels, models.ChannelEmail)
		}
	}

	// With no external jobs in flight nothing will update the status later.
	if externalJobs == 0 {
		if err := s.store.UpdateNotificationStatus(ctx, notif.ID.String(), models.StatusSent); err != nil {
			s.logger.Errorf("Failed to finalize notification %s: %v", notif.ID, err)
		}
	}

	s.logger.Infof("Notification %s planned channels=%v jobs=%d", notif.ID, plan.Channels, len(plan.JobIDs))
	return plan, nil
}

// enabledChannels loads the user's preferences. No rows means every channel
// is on; a storage error degrades to the same default rather than blocking
// the notification.
func (s *Service) enabledChannels(ctx context.Context, userID int) map[string]bool {
	enabled := map[string]bool{
		models.ChannelGateway: true,
		models.ChannelEmail:   true,
	}
	prefs, err := s.store.GetPreferencesByUserID(ctx, userID)
	if err != nil {
		s.logger.Errorf("Failed to load preferences for user %d, defaulting all channels on: %v", userID, err)
		return enabled
	}
	for _, p := range prefs {
		enabled[p.Channel] = p.Enabled
	}
	return enabled
}
