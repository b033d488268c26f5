package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/db"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
)

type fakeStore struct {
	notifications []models.Notification
	statuses      map[string]string
	prefs         []models.Preference
	prefsErr      error
	rules         []models.RoutingRule
	templates     map[string]models.Template
	allTemplates  []models.Template
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses:  make(map[string]string),
		templates: make(map[string]models.Template),
	}
}

func (f *fakeStore) CreateNotification(_ context.Context, n models.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) UpdateNotificationStatus(_ context.Context, id, status string) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeStore) GetPreferencesByUserID(_ context.Context, _ int) ([]models.Preference, error) {
	return f.prefs, f.prefsErr
}

func (f *fakeStore) GetActiveRoutingRules(_ context.Context, notificationType string) ([]models.RoutingRule, error) {
	var out []models.RoutingRule
	for _, r := range f.rules {
		if r.NotificationType == notificationType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTemplateByCode(_ context.Context, code string) (models.Template, error) {
	if t, ok := f.templates[code]; ok {
		return t, nil
	}
	return models.Template{}, db.ErrNotFound
}

func (f *fakeStore) GetActiveTemplates(_ context.Context) ([]models.Template, error) {
	return f.allTemplates, nil
}

type fakeQueue struct {
	jobs []models.DeliveryJob
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job models.DeliveryJob) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	job.ID = uuid.New()
	f.jobs = append(f.jobs, job)
	return job.ID, nil
}

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) Send(to, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

func newService(store *fakeStore, queue *fakeQueue, email EmailSender) *Service {
	logger := logging.NewNop()
	return New(store, queue, email, NewWebSocketManager(logger), logger)
}

func TestSendAllChannelsDefault(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	email := &fakeEmail{}
	svc := newService(store, queue, email)

	plan, err := svc.Send(context.Background(), models.Event{
		UserID:  42,
		Type:    "ticket_created",
		Subject: "Ticket T-1",
		Body:    "New ticket",
		Target:  "081234567890",
		Email:   "cust@example.com",
	})
	require.NoError(t, err)

	require.Len(t, store.notifications, 1)
	assert.Equal(t, models.StatusPending, store.notifications[0].Status)

	assert.Contains(t, plan.Channels, models.ChannelInApp)
	assert.Contains(t, plan.Channels, models.ChannelGateway)
	assert.Contains(t, plan.Channels, models.ChannelEmail)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, models.JobNotifyUser, queue.jobs[0].Kind)
	assert.Equal(t, plan.NotificationID.String(), queue.jobs[0].CorrelationID)
	assert.Equal(t, []string{"cust@example.com"}, email.sent)
}

func TestSendRespectsDisabledPreference(t *testing.T) {
	store := newFakeStore()
	store.prefs = []models.Preference{
		{UserID: 42, Channel: models.ChannelGateway, Enabled: false},
	}
	queue := &fakeQueue{}
	svc := newService(store, queue, &fakeEmail{})

	plan, err := svc.Send(context.Background(), models.Event{
		UserID: 42, Type: "invoice_due", Subject: "s", Body: "b",
		Target: "081234567890", Email: "a@b.c",
	})
	require.NoError(t, err)

	assert.Empty(t, queue.jobs)
	assert.NotContains(t, plan.Channels, models.ChannelGateway)
	assert.Contains(t, plan.Channels, models.ChannelInApp)
	// No external job in flight: status finalized immediately.
	assert.Equal(t, models.StatusSent, store.statuses[plan.NotificationID.String()])
}

func TestSendPreferenceLookupFailureDefaultsOn(t *testing.T) {
	store := newFakeStore()
	store.prefsErr = errors.New("db down")
	queue := &fakeQueue{}
	svc := newService(store, queue, nil)

	plan, err := svc.Send(context.Background(), models.Event{
		UserID: 7, Type: "outage", Subject: "s", Body: "b", Target: "0812345678",
	})
	require.NoError(t, err)
	assert.Len(t, queue.jobs, 1)
	assert.Contains(t, plan.Channels, models.ChannelGateway)
}

func TestSendCollectsChannelFailures(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{err: errors.New("broker down")}
	email := &fakeEmail{err: errors.New("smtp down")}
	svc := newService(store, queue, email)

	plan, err := svc.Send(context.Background(), models.Event{
		UserID: 1, Type: "t", Subject: "s", Body: "b",
		Target: "0812345678", Email: "x@y.z",
	})
	require.NoError(t, err) // channel failures never fail the event
	assert.Len(t, plan.Errors, 2)
	assert.Contains(t, plan.Channels, models.ChannelInApp)
}

func TestRouteToGroups(t *testing.T) {
	store := newFakeStore()
	store.rules = []models.RoutingRule{
		{
			ID:               uuid.New(),
			NotificationType: "outage",
			Conditions: []models.RoutingCondition{
				{Field: "region", Operator: models.OpEquals, Value: "jakarta"},
			},
			TargetGroups: []string{"group:noc", "group:field-team"},
			TemplateCode: "outage_group",
			IsActive:     true,
		},
		{
			ID:               uuid.New(),
			NotificationType: "outage",
			Conditions: []models.RoutingCondition{
				{Field: "region", Operator: models.OpEquals, Value: "bandung"},
			},
			TargetGroups: []string{"group:bandung-noc"},
			TemplateCode: "outage_group",
			IsActive:     true,
		},
	}
	store.templates["outage_group"] = models.Template{
		Code: "outage_group",
		Body: "Outage in {{region}}: {{detail}}",
	}
	queue := &fakeQueue{}
	svc := newService(store, queue, nil)

	result, err := svc.RouteToGroups(context.Background(), "outage", map[string]string{
		"region": "jakarta",
		"detail": "fiber cut",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.MatchedRules)
	require.Len(t, queue.jobs, 2)
	assert.Equal(t, "group:noc", queue.jobs[0].Target)
	assert.Equal(t, "Outage in jakarta: fiber cut", queue.jobs[0].Message)
	assert.Equal(t, models.JobNotifyGroup, queue.jobs[0].Kind)
}

func TestRouteToGroupsFuzzyTemplate(t *testing.T) {
	store := newFakeStore()
	store.rules = []models.RoutingRule{
		{
			ID:               uuid.New(),
			NotificationType: "payment_received",
			TargetGroups:     []string{"group:billing"},
			IsActive:         true,
		},
	}
	store.allTemplates = []models.Template{
		{Code: "payment_received_v2", Body: "Paid: {{amount}}"},
	}
	queue := &fakeQueue{}
	svc := newService(store, queue, nil)

	result, err := svc.RouteToGroups(context.Background(), "payment_received", map[string]string{"amount": "150000"})
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "Paid: 150000", queue.jobs[0].Message)
	assert.Equal(t, 1, result.MatchedRules)
}

func TestRouteToGroupsNoTemplateIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.rules = []models.RoutingRule{
		{ID: uuid.New(), NotificationType: "misc", TargetGroups: []string{"group:x"}, IsActive: true},
	}
	queue := &fakeQueue{}
	svc := newService(store, queue, nil)

	result, err := svc.RouteToGroups(context.Background(), "misc", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MatchedRules)
	assert.Empty(t, queue.jobs)
	assert.Empty(t, result.Errors)
}

func TestMatchConditions(t *testing.T) {
	tests := []struct {
		name       string
		conditions []models.RoutingCondition
		data       map[string]string
		want       bool
	}{
		{
			name: "empty conditions match",
			data: map[string]string{"a": "1"},
			want: true,
		},
		{
			name: "equals match",
			conditions: []models.RoutingCondition{
				{Field: "severity", Operator: models.OpEquals, Value: "critical"},
			},
			data: map[string]string{"severity": "critical"},
			want: true,
		},
		{
			name: "equals mismatch",
			conditions: []models.RoutingCondition{
				{Field: "severity", Operator: models.OpEquals, Value: "critical"},
			},
			data: map[string]string{"severity": "low"},
			want: false,
		},
		{
			name: "in set match",
			conditions: []models.RoutingCondition{
				{Field: "plan", Operator: models.OpIn, Value: []interface{}{"gold", "platinum"}},
			},
			data: map[string]string{"plan": "gold"},
			want: true,
		},
		{
			name: "in set mismatch",
			conditions: []models.RoutingCondition{
				{Field: "plan", Operator: models.OpIn, Value: []interface{}{"gold", "platinum"}},
			},
			data: map[string]string{"plan": "basic"},
			want: false,
		},
		{
			name: "max within threshold",
			conditions: []models.RoutingCondition{
				{Field: "priority", Operator: models.OpMax, Value: float64(3)},
			},
			data: map[string]string{"priority": "2"},
			want: true,
		},
		{
			name: "max over threshold",
			conditions: []models.RoutingCondition{
				{Field: "priority", Operator: models.OpMax, Value: float64(3)},
			},
			data: map[string]string{"priority": "5"},
			want: false,
		},
		{
			name: "missing field never matches",
			conditions: []models.RoutingCondition{
				{Field: "region", Operator: models.OpEquals, Value: "jakarta"},
			},
			data: map[string]string{},
			want: false,
		},
		{
			name: "unknown operator never matches",
			conditions: []models.RoutingCondition{
				{Field: "a", Operator: "regex", Value: ".*"},
			},
			data: map[string]string{"a": "x"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchConditions(tt.conditions, tt.data))
		})
	}
}
