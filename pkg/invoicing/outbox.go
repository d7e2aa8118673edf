package invoicing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks an outbox job through its lifecycle.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDelivered  JobStatus = "delivered"
	// JobParked means retries were exhausted; the job waits for manual
	// inspection and requeue.
	JobParked JobStatus = "parked"
)

// Job is a single invoice to issue and deliver.
type Job struct {
	ID            uuid.UUID     `json:"id"`
	Client        ClientDetails `json:"client"`
	Invoice       Invoice       `json:"invoice"`
	Status        JobStatus     `json:"status"`
	Attempts      int           `json:"attempts"`
	LastError     string        `json:"last_error,omitempty"`
	NextAttemptAt time.Time     `json:"next_attempt_at"`
	// LeaseExpiresAt bounds how long a claimed job stays invisible. A worker
	// that crashes mid-delivery releases the job implicitly once the lease
	// runs out.
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// JobStore persists outbox jobs. Enqueue must be durable before returning;
// the caller treats a nil error as a guarantee the invoice will eventually
// be attempted.
type JobStore interface {
	Enqueue(ctx context.Context, job *Job) error
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration) (*Job, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) error
	Park(ctx context.Context, id uuid.UUID, errMsg string) error
}

// OutboxConfig controls retry behavior.
type OutboxConfig struct {
	PollInterval time.Duration `env:"INVOICE_OUTBOX_POLL_INTERVAL" envDefault:"10s"`
	MaxAttempts  int           `env:"INVOICE_OUTBOX_MAX_ATTEMPTS" envDefault:"8"`
	// LeaseTTL is how long a claimed job stays invisible to other workers
	// before it becomes claimable again.
	LeaseTTL time.Duration `env:"INVOICE_OUTBOX_LEASE" envDefault:"5m"`
}

// Outbox decouples invoice issuance from the billing critical path. Jobs are
// claimed one at a time and run through find-or-create client, issue, mark
// paid and deliver; failures are retried with exponential backoff.
type Outbox struct {
	store    JobStore
	provider Provider
	cfg      OutboxConfig
	backoff  ExponentialBackoff
	logger   *slog.Logger
}

// NewOutbox creates an invoice outbox. Panics on nil dependencies to fail
// fast during initialization.
func NewOutbox(store JobStore, provider Provider, cfg OutboxConfig, logger *slog.Logger) *Outbox {
	if store == nil {
		panic("invoicing: JobStore is required")
	}
	if provider == nil {
		panic("invoicing: Provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}

	return &Outbox{
		store:    store,
		provider: provider,
		cfg:      cfg,
		backoff:  ExponentialBackoff{InitialInterval: time.Minute, MaxInterval: time.Hour, Multiplier: 2, JitterFactor: 0.2},
		logger:   logger,
	}
}

// Enqueue schedules an invoice for issuance. Returns quickly; the actual
// provider calls happen on the worker.
func (o *Outbox) Enqueue(ctx context.Context, client ClientDetails, inv Invoice) error {
	job := &Job{
		ID:            uuid.New(),
		Client:        client,
		Invoice:       inv,
		Status:        JobPending,
		NextAttemptAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	return o.store.Enqueue(ctx, job)
}

// Run processes jobs until the context is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for o.ProcessDue(ctx) {
			}
		}
	}
}

// ProcessDue claims and runs a single due job. Returns false when no job
// was due. Exposed so tests and admin tooling can drive the outbox without
// waiting on the poll ticker.
func (o *Outbox) ProcessDue(ctx context.Context) bool {
	job, err := o.store.ClaimDue(ctx, time.Now().UTC(), o.cfg.LeaseTTL)
	if err != nil || job == nil {
		return false
	}

	if err := o.deliver(ctx, job); err != nil {
		attempt := job.Attempts + 1
		if attempt >= o.cfg.MaxAttempts {
			o.logger.ErrorContext(ctx, "invoice job exhausted retries, parking",
				slog.String("job_id", job.ID.String()),
				slog.Any("error", err))
			_ = o.store.Park(ctx, job.ID, err.Error())
			return true
		}

		next := time.Now().UTC().Add(o.backoff.NextInterval(attempt))
		o.logger.WarnContext(ctx, "invoice job failed, will retry",
			slog.String("job_id", job.ID.String()),
			slog.Int("attempt", attempt),
			slog.Time("next_attempt", next),
			slog.Any("error", err))
		_ = o.store.MarkFailed(ctx, job.ID, err.Error(), next)
		return true
	}

	_ = o.store.MarkDelivered(ctx, job.ID)
	return true
}

func (o *Outbox) deliver(ctx context.Context, job *Job) error {
	clientID, err := o.provider.FindOrCreateClient(ctx, job.Client)
	if err != nil {
		return err
	}

	inv := job.Invoice
	inv.ClientID = clientID

	invoiceID, err := o.provider.IssueInvoice(ctx, inv)
	if err != nil {
		return err
	}
	if err := o.provider.MarkPaid(ctx, invoiceID); err != nil {
		return err
	}
	return o.provider.Deliver(ctx, invoiceID)
}

// MemoryJobStore is an in-memory JobStore for tests and single-node
// deployments.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*Job)}
}

func (m *MemoryJobStore) Enqueue(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *MemoryJobStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		due := job.Status == JobPending && !job.NextAttemptAt.After(now)
		// A processing job whose lease ran out belongs to a worker that died
		// mid-delivery; it is claimable again.
		expired := job.Status == JobProcessing && !job.LeaseExpiresAt.After(now)
		if due || expired {
			job.Status = JobProcessing
			job.LeaseExpiresAt = now.Add(lease)
			claimed := *job
			return &claimed, nil
		}
	}
	return nil, nil
}

func (m *MemoryJobStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	return m.update(id, func(j *Job) {
		j.Status = JobDelivered
	})
}

func (m *MemoryJobStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) error {
	return m.update(id, func(j *Job) {
		j.Status = JobPending
		j.Attempts++
		j.LastError = errMsg
		j.NextAttemptAt = nextAttempt
	})
}

func (m *MemoryJobStore) Park(ctx context.Context, id uuid.UUID, errMsg string) error {
	return m.update(id, func(j *Job) {
		j.Status = JobParked
		j.Attempts++
		j.LastError = errMsg
	})
}

// Jobs returns a snapshot of all jobs, for tests and admin inspection.
func (m *MemoryJobStore) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out
}

func (m *MemoryJobStore) update(id uuid.UUID, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	return nil
}
