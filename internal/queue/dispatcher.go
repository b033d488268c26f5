package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"notification-engine/internal/gateway"
	"notification-engine/internal/logging"
	"notification-engine/internal/metrics"
	"notification-engine/internal/models"
)

// Handler executes one job kind. Returning an error makes the attempt
// retryable, except errors wrapping gateway.ErrInvalidTarget, which fail the
// job terminally. Panics are caught and retried like plain errors.
type Handler func(ctx context.Context, job models.DeliveryJob) error

// Recorder persists terminal job outcomes.
type Recorder interface {
	UpsertDeliveryRecord(ctx context.Context, r models.DeliveryRecord) error
}

// StatusUpdater reflects terminal outcomes onto the originating notification
// row, keyed by the job's correlation id.
type StatusUpdater interface {
	UpdateNotificationStatus(ctx context.Context, id, status string) error
}

type jobSource interface {
	Consume(ctx context.Context, out chan<- models.DeliveryJob) error
}

type jobSink interface {
	Publish(ctx context.Context, job models.DeliveryJob) error
}

// Config are the dispatcher's tunables.
type Config struct {
	Workers         int
	MaxAttempts     int
	BackoffBase     time.Duration
	LockDuration    time.Duration
	RateLimitCount  int
	RateLimitWindow time.Duration
	MaxStallRetries int
	Provider        string
}

type activeJob struct {
	job      models.DeliveryJob
	deadline time.Time
}

// Dispatcher owns the worker pool. Per-job state machine:
// queued -> active -> completed | failed(retryable, requeued) | failed(terminal).
// A job holding its lock past LockDuration is presumed stalled and requeued.
type Dispatcher struct {
	source   jobSource
	sink     jobSink
	recorder Recorder
	statuses StatusUpdater
	logger   *logging.Logger
	cfg      Config

	handlers map[models.JobKind]Handler
	limiter  *rate.Limiter

	mu     sync.Mutex
	active map[uuid.UUID]activeJob

	wg sync.WaitGroup
}

func NewDispatcher(source jobSource, sink jobSink, recorder Recorder, statuses StatusUpdater, logger *logging.Logger, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 30 * time.Second
	}
	if cfg.RateLimitCount <= 0 {
		cfg.RateLimitCount = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxStallRetries <= 0 {
		cfg.MaxStallRetries = 2
	}
	// Caps job starts per rolling window, independent of worker count.
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RateLimitCount)/cfg.RateLimitWindow.Seconds()), cfg.RateLimitCount)

	return &Dispatcher{
		source:   source,
		sink:     sink,
		recorder: recorder,
		statuses: statuses,
		logger:   logger,
		cfg:      cfg,
		handlers: make(map[models.JobKind]Handler),
		limiter:  limiter,
		active:   make(map[uuid.UUID]activeJob),
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (d *Dispatcher) Register(kind models.JobKind, h Handler) {
	d.handlers[kind] = h
}

// Enqueue assigns the job an id and publishes it. Callers get the id back
// immediately; delivery happens asynchronously.
func (d *Dispatcher) Enqueue(ctx context.Context, job models.DeliveryJob) (uuid.UUID, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = d.cfg.MaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.Attempt = 0

	if err := d.sink.Publish(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	d.logger.Infof("Enqueued job %s kind=%s channel=%s", job.ID, job.Kind, job.Channel)
	return job.ID, nil
}

// Start launches the consumer, workers, and the stall watchdog. It returns
// immediately; use Wait to drain on shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	jobs := make(chan models.DeliveryJob)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.source.Consume(ctx, jobs); err != nil {
			d.logger.Errorf("Job consumer stopped: %v", err)
		}
	}()

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					d.logger.Infof("Worker %d stopped", id)
					return
				case job := <-jobs:
					d.process(ctx, job)
				}
			}
		}(i)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watchdog(ctx)
	}()
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) process(ctx context.Context, job models.DeliveryJob) {
	if err := d.limiter.Wait(ctx); err != nil {
		return // shutting down
	}

	job.Attempt++
	d.lock(job)
	defer d.unlock(job.ID)

	handler, ok := d.handlers[job.Kind]
	if !ok {
		d.logger.Errorf("Job %s has unknown kind %q, failing terminally", job.ID, job.Kind)
		d.finish(ctx, job, models.JobFailed, fmt.Sprintf("unknown job kind %q", job.Kind))
		return
	}

	err := d.invoke(ctx, handler, job)
	if err == nil {
		d.finish(ctx, job, models.JobCompleted, "")
		return
	}

	// A target that can never become valid fails terminally on the first
	// attempt; backoff would only delay the same rejection.
	if errors.Is(err, gateway.ErrInvalidTarget) {
		d.logger.Errorf("Job %s rejected: %v", job.ID, err)
		d.finish(ctx, job, models.JobFailed, err.Error())
		return
	}

	d.logger.Warnf("Job %s attempt %d/%d failed: %v", job.ID, job.Attempt, job.MaxAttempts, err)
	if job.Attempt >= job.MaxAttempts {
		d.finish(ctx, job, models.JobFailed, err.Error())
		return
	}

	metrics.JobsRetried.Inc()
	d.requeueAfter(job, d.backoff(job.Attempt))
}

// invoke runs the handler with panic containment so one bad job cannot kill
// a worker.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, job models.DeliveryJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

// backoff is exponential: base, 2*base, 4*base, ...
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (d *Dispatcher) requeueAfter(job models.DeliveryJob, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := d.sink.Publish(context.Background(), job); err != nil {
			d.logger.Errorf("Failed to requeue job %s: %v", job.ID, err)
			d.finish(context.Background(), job, models.JobFailed, "requeue failed: "+err.Error())
		}
	})
}

// finish records the terminal outcome. Persistence errors are logged but do
// not crash the worker loop; a missing record is a data-quality gap, not a
// worker fault.
func (d *Dispatcher) finish(ctx context.Context, job models.DeliveryJob, status, lastError string) {
	metrics.JobsProcessed.WithLabelValues(string(job.Kind), status).Inc()
	if status != models.JobCompleted {
		d.logger.Errorf("Job %s terminally %s after %d attempts: %s", job.ID, status, job.Attempt, lastError)
	}

	now := time.Now()
	record := models.DeliveryRecord{
		JobID:       job.ID,
		Channel:     job.Channel,
		Status:      deliveryStatus(status),
		Provider:    d.cfg.Provider,
		Attempts:    job.Attempt,
		LastError:   lastError,
		CreatedAt:   job.CreatedAt,
		CompletedAt: &now,
	}
	if err := d.recorder.UpsertDeliveryRecord(ctx, record); err != nil {
		d.logger.Errorf("Failed to persist delivery record for job %s: %v", job.ID, err)
	}

	if d.statuses != nil && job.CorrelationID != "" {
		notifStatus := models.StatusSent
		if status != models.JobCompleted {
			notifStatus = models.StatusFailed
		}
		if err := d.statuses.UpdateNotificationStatus(ctx, job.CorrelationID, notifStatus); err != nil {
			d.logger.Errorf("Failed to update notification %s status: %v", job.CorrelationID, err)
		}
	}
}

func deliveryStatus(jobStatus string) string {
	if jobStatus == models.JobCompleted {
		return "delivered"
	}
	return jobStatus
}

func (d *Dispatcher) lock(job models.DeliveryJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[job.ID] = activeJob{job: job, deadline: time.Now().Add(d.cfg.LockDuration)}
}

func (d *Dispatcher) unlock(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, id)
}

// watchdog requeues jobs whose lock expired, presuming the worker hung or
// died mid-flight. A job is stall-requeued at most MaxStallRetries times,
// then abandoned.
func (d *Dispatcher) watchdog(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepStalled(ctx)
		}
	}
}

func (d *Dispatcher) sweepStalled(ctx context.Context) {
	now := time.Now()

	d.mu.Lock()
	var stalled []models.DeliveryJob
	for id, a := range d.active {
		if now.After(a.deadline) {
			stalled = append(stalled, a.job)
			delete(d.active, id)
		}
	}
	d.mu.Unlock()

	for _, job := range stalled {
		metrics.JobsStalled.Inc()
		if job.StallCount >= d.cfg.MaxStallRetries {
			d.logger.Errorf("Job %s stalled %d times, abandoning", job.ID, job.StallCount)
			d.finish(ctx, job, models.JobAbandoned, "stalled worker, retries exhausted")
			continue
		}
		job.StallCount++
		d.logger.Warnf("Job %s presumed stalled, requeueing (stall %d/%d)", job.ID, job.StallCount, d.cfg.MaxStallRetries)
		if err := d.sink.Publish(ctx, job); err != nil {
			d.logger.Errorf("Failed to requeue stalled job %s: %v", job.ID, err)
		}
	}
}
