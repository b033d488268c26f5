package alerts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/logging"
	"notification-engine/internal/models"
)

type fakeRuleStore struct {
	mu      sync.Mutex
	rules   []models.AlertRule
	history []models.AlertHistory
}

func (f *fakeRuleStore) GetActiveAlertRules(ctx context.Context) ([]models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AlertRule(nil), f.rules...), nil
}

func (f *fakeRuleStore) CreateAlertHistory(ctx context.Context, h models.AlertHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, h)
	return nil
}

func (f *fakeRuleStore) historyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history)
}

type fakeAlertQueue struct {
	mu   sync.Mutex
	jobs []models.DeliveryJob
	err  error
}

func (f *fakeAlertQueue) Enqueue(ctx context.Context, job models.DeliveryJob) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.jobs = append(f.jobs, job)
	return uuid.New(), nil
}

type fakeAlertEmail struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAlertEmail) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return nil
}

type fakeTelegram struct {
	mu    sync.Mutex
	chats []int64
	err   error
}

func (f *fakeTelegram) Send(ctx context.Context, chatID int64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.chats = append(f.chats, chatID)
	return nil
}

func fixedSampler(v float64) Sampler {
	return func(ctx context.Context) (*float64, error) { return &v, nil }
}

func testRule(metric string, threshold float64) models.AlertRule {
	return models.AlertRule{
		ID:              uuid.New(),
		Name:            "test rule",
		Metric:          metric,
		Condition:       models.CondGreaterThan,
		Threshold:       threshold,
		Severity:        2,
		CooldownMinutes: 60,
		Channels:        []string{models.ChannelGateway},
		Recipients:      []models.AlertRecipient{{Name: "ops", Phone: "6281234567890"}},
		IsActive:        true,
	}
}

func newTestEvaluator(store *fakeRuleStore, samplers map[string]Sampler, queue *fakeAlertQueue, email *fakeAlertEmail, tg *fakeTelegram) *Evaluator {
	return NewEvaluator(store, samplers, queue, email, tg, logging.NewNop(), time.Minute, time.Hour)
}

func TestEvaluatorFiresOnBreach(t *testing.T) {
	store := &fakeRuleStore{rules: []models.AlertRule{testRule("disk_usage_pct", 90)}}
	queue := &fakeAlertQueue{}
	e := newTestEvaluator(store, map[string]Sampler{"disk_usage_pct": fixedSampler(92)}, queue, nil, nil)

	result := e.TriggerNow(context.Background())

	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 1, result.Fired)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "6281234567890", queue.jobs[0].Target)
	assert.Contains(t, queue.jobs[0].Message, "WARNING")
	assert.Contains(t, queue.jobs[0].Message, "disk_usage_pct")

	require.Equal(t, 1, store.historyCount())
	h := store.history[0]
	assert.Equal(t, 92.0, h.Value)
	assert.True(t, h.ChannelSent[models.ChannelGateway])
}

func TestEvaluatorCooldownSuppressesRepeat(t *testing.T) {
	rule := testRule("disk_usage_pct", 90)
	store := &fakeRuleStore{rules: []models.AlertRule{rule}}
	e := newTestEvaluator(store, map[string]Sampler{"disk_usage_pct": fixedSampler(92)}, &fakeAlertQueue{}, nil, nil)

	t0 := time.Now()
	fired, _ := e.evaluateRule(context.Background(), rule, t0)
	assert.True(t, fired)

	// Still breaching one minute later, but inside the 60-minute cooldown.
	fired, skipped := e.evaluateRule(context.Background(), rule, t0.Add(time.Minute))
	assert.False(t, fired)
	assert.True(t, skipped)

	// At 61 minutes the cooldown has elapsed and the rule fires again.
	fired, _ = e.evaluateRule(context.Background(), rule, t0.Add(61*time.Minute))
	assert.True(t, fired)
	assert.Equal(t, 2, store.historyCount())
}

func TestEvaluatorZeroCooldownUsesDefault(t *testing.T) {
	rule := testRule("disk_usage_pct", 90)
	rule.CooldownMinutes = 0
	store := &fakeRuleStore{rules: []models.AlertRule{rule}}
	e := newTestEvaluator(store, map[string]Sampler{"disk_usage_pct": fixedSampler(92)}, &fakeAlertQueue{}, nil, nil)

	t0 := time.Now()
	fired, _ := e.evaluateRule(context.Background(), rule, t0)
	require.True(t, fired)

	// Without the default backstop this would refire every tick.
	fired, skipped := e.evaluateRule(context.Background(), rule, t0.Add(time.Minute))
	assert.False(t, fired)
	assert.True(t, skipped)

	fired, _ = e.evaluateRule(context.Background(), rule, t0.Add(time.Hour))
	assert.True(t, fired)
}

func TestEvaluatorFiresExactlyAtCooldownBoundary(t *testing.T) {
	rule := testRule("error_rate", 10)
	store := &fakeRuleStore{rules: []models.AlertRule{rule}}
	e := newTestEvaluator(store, map[string]Sampler{"error_rate": fixedSampler(50)}, &fakeAlertQueue{}, nil, nil)

	t0 := time.Now()
	fired, _ := e.evaluateRule(context.Background(), rule, t0)
	require.True(t, fired)

	fired, _ = e.evaluateRule(context.Background(), rule, t0.Add(60*time.Minute))
	assert.True(t, fired, "rule should fire at exactly lastFired+cooldown")
}

func TestEvaluatorNilMetricNeverFires(t *testing.T) {
	store := &fakeRuleStore{rules: []models.AlertRule{testRule("backup_fresh", 0.5)}}
	unavailable := func(ctx context.Context) (*float64, error) { return nil, nil }
	e := newTestEvaluator(store, map[string]Sampler{"backup_fresh": unavailable}, &fakeAlertQueue{}, nil, nil)

	result := e.TriggerNow(context.Background())

	assert.Equal(t, 0, result.Fired)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, store.historyCount())
}

func TestEvaluatorUnknownMetricSkipped(t *testing.T) {
	store := &fakeRuleStore{rules: []models.AlertRule{testRule("no_such_metric", 1)}}
	e := newTestEvaluator(store, map[string]Sampler{}, &fakeAlertQueue{}, nil, nil)

	result := e.TriggerNow(context.Background())
	assert.Equal(t, 0, result.Fired)
	assert.Equal(t, 1, result.Skipped)
}

func TestEvaluatorSamplerErrorSkipped(t *testing.T) {
	store := &fakeRuleStore{rules: []models.AlertRule{testRule("error_rate", 1)}}
	broken := func(ctx context.Context) (*float64, error) { return nil, fmt.Errorf("db down") }
	e := newTestEvaluator(store, map[string]Sampler{"error_rate": broken}, &fakeAlertQueue{}, nil, nil)

	result := e.TriggerNow(context.Background())
	assert.Equal(t, 0, result.Fired)
	assert.Equal(t, 0, store.historyCount())
}

func TestEvaluatorOneRulePanicDoesNotStopOthers(t *testing.T) {
	bad := testRule("panics", 1)
	good := testRule("error_rate", 10)
	store := &fakeRuleStore{rules: []models.AlertRule{bad, good}}
	samplers := map[string]Sampler{
		"panics":     func(ctx context.Context) (*float64, error) { panic("boom") },
		"error_rate": fixedSampler(50),
	}
	e := newTestEvaluator(store, samplers, &fakeAlertQueue{}, nil, nil)

	result := e.TriggerNow(context.Background())
	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Fired)
	assert.Equal(t, 1, store.historyCount())
}

func TestEvaluatorMultiChannelDispatch(t *testing.T) {
	rule := testRule("error_rate", 10)
	rule.Channels = []string{models.ChannelGateway, models.ChannelEmail, models.ChannelTelegram}
	rule.Recipients = []models.AlertRecipient{
		{Name: "ops", Phone: "628111", Email: "ops@example.com", ChatID: 42},
	}
	store := &fakeRuleStore{rules: []models.AlertRule{rule}}
	queue := &fakeAlertQueue{}
	email := &fakeAlertEmail{}
	tg := &fakeTelegram{}
	e := newTestEvaluator(store, map[string]Sampler{"error_rate": fixedSampler(50)}, queue, email, tg)

	result := e.TriggerNow(context.Background())
	require.Equal(t, 1, result.Fired)

	assert.Len(t, queue.jobs, 1)
	assert.Equal(t, []string{"ops@example.com"}, email.sent)
	assert.Equal(t, []int64{42}, tg.chats)

	h := store.history[0]
	assert.True(t, h.ChannelSent[models.ChannelGateway])
	assert.True(t, h.ChannelSent[models.ChannelEmail])
	assert.True(t, h.ChannelSent[models.ChannelTelegram])
}

func TestEvaluatorChannelFailureRecordedNotFatal(t *testing.T) {
	rule := testRule("error_rate", 10)
	rule.Channels = []string{models.ChannelGateway, models.ChannelTelegram}
	rule.Recipients = []models.AlertRecipient{{Phone: "628111", ChatID: 42}}
	store := &fakeRuleStore{rules: []models.AlertRule{rule}}
	queue := &fakeAlertQueue{}
	tg := &fakeTelegram{err: fmt.Errorf("bot token revoked")}
	e := newTestEvaluator(store, map[string]Sampler{"error_rate": fixedSampler(50)}, queue, nil, tg)

	result := e.TriggerNow(context.Background())
	require.Equal(t, 1, result.Fired)

	h := store.history[0]
	assert.True(t, h.ChannelSent[models.ChannelGateway])
	assert.False(t, h.ChannelSent[models.ChannelTelegram])
}

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		cond      string
		value     float64
		threshold float64
		want      bool
	}{
		{models.CondGreaterThan, 95, 90, true},
		{models.CondGreaterThan, 90, 90, false},
		{models.CondLessThan, 0, 1, true},
		{models.CondLessThan, 1, 1, false},
		{models.CondEquals, 0, 0, true},
		{models.CondEquals, 0.1, 0, false},
		{models.CondNotEquals, 1, 0, true},
		{models.CondNotEquals, 0, 0, false},
		{"between", 5, 5, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%v_%v", tt.cond, tt.value, tt.threshold), func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateCondition(tt.cond, tt.value, tt.threshold))
		})
	}
}

func TestCooldownTracker(t *testing.T) {
	c := NewCooldownTracker()
	id := uuid.New()
	now := time.Now()

	assert.True(t, c.Allow(id, time.Hour, now), "unseen rule is always allowed")

	c.MarkFired(id, now)
	assert.False(t, c.Allow(id, time.Hour, now.Add(59*time.Minute)))
	assert.True(t, c.Allow(id, time.Hour, now.Add(60*time.Minute)))

	last, ok := c.LastFired(id)
	assert.True(t, ok)
	assert.Equal(t, now, last)

	assert.True(t, c.Allow(id, 0, now), "zero cooldown never blocks")
}
