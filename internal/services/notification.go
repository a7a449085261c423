package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"campustickets/internal/codec"
	"campustickets/internal/domain"
	"campustickets/internal/monitoring"
)

// DispatcherConfig tunes the notification worker pool and its retry policy.
type DispatcherConfig struct {
	// Workers is the number of concurrent delivery workers.
	Workers int
	// MaxAttempts is the ceiling after which a lineage becomes terminally
	// failed.
	MaxAttempts int
	// PollInterval is how often an idle worker re-checks the queue.
	PollInterval time.Duration
	// ClaimLimit is the batch size per claim.
	ClaimLimit int
	// Lease is how long a claimed entry stays invisible to other workers.
	// It must exceed SendTimeout or a slow send can be claimed twice.
	Lease time.Duration
	// SendTimeout bounds a single transport attempt.
	SendTimeout time.Duration
	// InitialBackoff, MaxBackoff, BackoffMultiplier, and JitterFraction shape
	// the retry schedule.
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	JitterFraction    float64
	// RandomSeed, when non-zero, makes jitter reproducible in tests.
	RandomSeed int64

	// BaseURL is the public root for the emailed view link.
	BaseURL string
	// SupportEmail is shown in the confirmation footer.
	SupportEmail string
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ClaimLimit <= 0 {
		c.ClaimLimit = 10
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = 2 * c.SendTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2
	}
	if c.JitterFraction <= 0 || c.JitterFraction >= 1 {
		c.JitterFraction = 0.2
	}
	return c
}

// Dispatcher owns the delivery log: it queues confirmation jobs and runs the
// worker pool that delivers them. Everything it does is observable through
// the log; callers treat Enqueue as fire-and-forget.
type Dispatcher struct {
	deliveryLog domain.DeliveryLogRepository
	ticketRepo  domain.TicketRepository
	eventRepo   domain.EventRepository
	holderRepo  domain.HolderRepository
	limiter     domain.ResendLimiter
	mailer      domain.Mailer
	renderer    domain.EmailTemplateRenderer
	signer      domain.TicketTokenSigner
	logger      *slog.Logger
	cfg         DispatcherConfig

	// nudge wakes an idle worker right after an enqueue so fresh
	// confirmations don't wait out a poll interval.
	nudge chan struct{}

	randMu sync.Mutex
	rng    *rand.Rand

	now func() time.Time
}

// NewDispatcher wires the notification pipeline.
func NewDispatcher(
	deliveryLog domain.DeliveryLogRepository,
	ticketRepo domain.TicketRepository,
	eventRepo domain.EventRepository,
	holderRepo domain.HolderRepository,
	limiter domain.ResendLimiter,
	mailer domain.Mailer,
	renderer domain.EmailTemplateRenderer,
	signer domain.TicketTokenSigner,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	cfg = cfg.withDefaults()
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Dispatcher{
		deliveryLog: deliveryLog,
		ticketRepo:  ticketRepo,
		eventRepo:   eventRepo,
		holderRepo:  holderRepo,
		limiter:     limiter,
		mailer:      mailer,
		renderer:    renderer,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
		nudge:       make(chan struct{}, 1),
		rng:         rand.New(rand.NewSource(seed)),
		now:         time.Now,
	}
}

// Enqueue queues the confirmation for a ticket. When the send key already has
// a sent entry this is a no-op success: the holder got their confirmation.
func (d *Dispatcher) Enqueue(ctx context.Context, ticketID string) error {
	t, err := d.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("get ticket: %w", err)
	}
	holder, err := d.holderRepo.GetByID(ctx, t.HolderID)
	if err != nil {
		return fmt.Errorf("get holder: %w", err)
	}
	event, err := d.eventRepo.GetByID(ctx, t.EventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}

	token, err := d.signer.Sign(t.ID, holder.Email)
	if err != nil {
		return fmt.Errorf("sign view token: %w", err)
	}

	now := d.now()
	entry := &domain.DeliveryLogEntry{
		ID:       uuid.NewString(),
		SendKey:  domain.SendKey(holder.Email, t.ID, domain.ConfirmationTemplate),
		To:       holder.Email,
		Subject:  fmt.Sprintf("Your ticket for %s", event.Title),
		Template: domain.ConfirmationTemplate,
		Status:   domain.DeliveryQueued,
		TicketID: t.ID,
		EventID:  event.ID,
		Context: domain.DeliveryContext{
			HolderName:   holder.DisplayName,
			EventTitle:   event.Title,
			EventWhen:    humanWhen(event.StartAt, event.EndAt),
			Location:     event.Location,
			TicketID:     t.ID,
			Seat:         t.SeatLabel,
			Organizer:    event.OrgName,
			SupportEmail: d.cfg.SupportEmail,
			ViewURL:      fmt.Sprintf("%s/tickets/view?token=%s", d.cfg.BaseURL, token),
			Payload:      t.Payload,
		},
		NextAttemptAt: now,
		CreatedAt:     now,
	}

	created, err := d.deliveryLog.EnqueueIfNotSent(ctx, entry)
	if err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	if !created {
		d.logger.InfoContext(ctx, "confirmation already sent, enqueue skipped",
			"ticket_id", t.ID, "send_key", entry.SendKey)
		return nil
	}

	select {
	case d.nudge <- struct{}{}:
	default:
	}
	return nil
}

// Resend re-queues a confirmation at the holder's request. Ownership and the
// per-recipient window are enforced before anything reaches the queue.
func (d *Dispatcher) Resend(ctx context.Context, ticketID, holderID string) error {
	t, err := d.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			return domain.ErrTicketNotFound
		}
		return fmt.Errorf("get ticket: %w", err)
	}
	if t.HolderID != holderID {
		return domain.ErrForbidden
	}
	holder, err := d.holderRepo.GetByID(ctx, t.HolderID)
	if err != nil {
		return fmt.Errorf("get holder: %w", err)
	}

	allowed, err := d.limiter.Allow(ctx, holder.Email)
	if err != nil {
		return fmt.Errorf("check resend limit: %w", err)
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	if err := d.Enqueue(ctx, ticketID); err != nil {
		return err
	}
	// Only a resend that reached the log counts against the window; a failed
	// enqueue costs the holder nothing.
	if err := d.limiter.Record(ctx, holder.Email); err != nil {
		d.logger.WarnContext(ctx, "record resend failed",
			"ticket_id", ticketID, "err", err)
	}
	return nil
}

// Run drives the worker pool until ctx is cancelled. Workers share nothing
// but the durable queue; claims are leased so two workers never hold the
// same entry.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			return d.worker(ctx)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		d.drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-d.nudge:
		case <-ticker.C:
		}
	}
}

// drain claims and processes due entries until the queue is empty or ctx
// ends.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		entries, err := d.deliveryLog.ClaimDue(ctx, d.cfg.ClaimLimit, d.now(), d.cfg.Lease)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.ErrorContext(ctx, "claim due deliveries failed", "err", err)
			}
			return
		}
		if len(entries) == 0 {
			return
		}
		for _, e := range entries {
			d.process(ctx, e)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, e *domain.DeliveryLogEntry) {
	attempt := e.Attempts + 1

	msg, err := d.buildMessage(e)
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		start := d.now()
		err = d.mailer.Send(sendCtx, msg)
		cancel()
		monitoring.ObserveSendDuration(time.Since(start).Seconds())
	}

	if err == nil {
		ok, markErr := d.deliveryLog.MarkSent(ctx, e.ID, d.now())
		if markErr != nil {
			d.logger.ErrorContext(ctx, "delivery succeeded but could not be recorded",
				"delivery_id", e.ID, "send_key", e.SendKey, "err", markErr)
			return
		}
		if !ok {
			// Another attempt already delivered for this entry; ours is the
			// duplicate the conditional update exists to swallow.
			d.logger.WarnContext(ctx, "duplicate delivery detected after send",
				"delivery_id", e.ID, "send_key", e.SendKey)
			return
		}
		monitoring.DeliverySent()
		d.logger.InfoContext(ctx, "confirmation delivered",
			"delivery_id", e.ID, "ticket_id", e.TicketID, "attempt", attempt)
		return
	}

	if attempt >= d.cfg.MaxAttempts {
		if recErr := d.deliveryLog.RecordFailure(ctx, e.ID, attempt, err.Error(), time.Time{}, true); recErr != nil {
			d.logger.ErrorContext(ctx, "record exhausted delivery failed", "delivery_id", e.ID, "err", recErr)
			return
		}
		monitoring.DeliveryExhausted()
		d.logger.ErrorContext(ctx, "delivery exhausted",
			"delivery_id", e.ID, "ticket_id", e.TicketID, "attempts", attempt, "err", err)
		return
	}

	delay := d.backoff(attempt)
	if recErr := d.deliveryLog.RecordFailure(ctx, e.ID, attempt, err.Error(), d.now().Add(delay), false); recErr != nil {
		d.logger.ErrorContext(ctx, "record delivery failure failed", "delivery_id", e.ID, "err", recErr)
		return
	}
	monitoring.DeliveryRetried()
	d.logger.WarnContext(ctx, "delivery attempt failed, rescheduled",
		"delivery_id", e.ID, "ticket_id", e.TicketID, "attempt", attempt, "retry_in", delay, "err", err)
}

func (d *Dispatcher) buildMessage(e *domain.DeliveryLogEntry) (*domain.EmailMessage, error) {
	subject, htmlBody, textBody, err := d.renderer.Render(e.Template, e.Context)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", e.Template, err)
	}
	qr, err := codec.QRPNG(e.Context.Payload)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return &domain.EmailMessage{
		To:       e.To,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
		Attachments: []domain.EmailAttachment{
			{Filename: "ticket_qr.png", ContentType: "image/png", Content: qr},
		},
	}, nil
}

// backoff is exponential in the attempt number, capped, with symmetric
// jitter so synchronized failures don't retry in lockstep.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	b := float64(d.cfg.InitialBackoff) * math.Pow(d.cfg.BackoffMultiplier, float64(attempt-1))
	if b > float64(d.cfg.MaxBackoff) {
		b = float64(d.cfg.MaxBackoff)
	}
	d.randMu.Lock()
	jitter := b * d.cfg.JitterFraction * (d.rng.Float64()*2 - 1)
	d.randMu.Unlock()
	return time.Duration(b + jitter)
}

func humanWhen(start, end time.Time) string {
	const layout = "Mon, Jan 2 2006, 3:04 PM"
	if start.IsZero() {
		return ""
	}
	if end.IsZero() {
		return start.Format(layout)
	}
	return start.Format(layout) + " to " + end.Format(layout)
}
