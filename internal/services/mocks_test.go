package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"campustickets/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memEventRepo is an in-memory read model of events.
type memEventRepo struct {
	mu     sync.Mutex
	events map[string]*domain.Event
}

func newMemEventRepo(events ...*domain.Event) *memEventRepo {
	m := &memEventRepo{events: map[string]*domain.Event{}}
	for _, ev := range events {
		m.events[ev.ID] = ev
	}
	return m
}

func (m *memEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

type memHolderRepo struct {
	holders map[string]*domain.Holder
}

func newMemHolderRepo(holders ...*domain.Holder) *memHolderRepo {
	m := &memHolderRepo{holders: map[string]*domain.Holder{}}
	for _, h := range holders {
		m.holders[h.ID] = h
	}
	return m
}

func (m *memHolderRepo) GetByID(ctx context.Context, id string) (*domain.Holder, error) {
	h, ok := m.holders[id]
	if !ok {
		return nil, domain.ErrHolderNotFound
	}
	cp := *h
	return &cp, nil
}

// memTicketRepo mirrors the postgres repository's atomic semantics under one
// mutex: the capacity and uniqueness checks and the insert happen inside a
// single critical section, as do validate-and-use on check-in.
type memTicketRepo struct {
	mu      sync.Mutex
	events  *memEventRepo
	holders *memHolderRepo
	tickets map[string]*domain.Ticket
}

func newMemTicketRepo(events *memEventRepo, holders *memHolderRepo) *memTicketRepo {
	return &memTicketRepo{
		events:  events,
		holders: holders,
		tickets: map[string]*domain.Ticket{},
	}
}

func (m *memTicketRepo) Issue(ctx context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events.events[t.EventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if ev.Status != domain.EventApproved {
		return domain.ErrEventNotApproved
	}
	issued := 0
	for _, existing := range m.tickets {
		if existing.EventID != t.EventID {
			continue
		}
		if existing.HolderID == t.HolderID && existing.Status != domain.TicketCancelled {
			return domain.ErrDuplicateTicket
		}
		if existing.Status == domain.TicketIssued {
			issued++
		}
	}
	if ev.Capacity > 0 && issued >= ev.Capacity {
		return domain.ErrCapacityExceeded
	}
	cp := *t
	m.tickets[t.ID] = &cp
	return nil
}

func (m *memTicketRepo) CheckIn(ctx context.Context, ticketID, presentedEventID string, now time.Time) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[ticketID]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	if t.EventID != presentedEventID {
		return nil, domain.ErrWrongEvent
	}
	switch t.Status {
	case domain.TicketUsed:
		return nil, domain.ErrAlreadyUsed
	case domain.TicketCancelled:
		return nil, domain.ErrTicketCancelled
	}
	if t.Expired(now) {
		return nil, domain.ErrTicketExpired
	}
	ev, ok := m.events.events[t.EventID]
	if !ok || ev.Status != domain.EventApproved {
		return nil, domain.ErrEventNotApproved
	}
	t.Status = domain.TicketUsed
	usedAt := now
	t.UsedAt = &usedAt
	cp := *t
	return &cp, nil
}

func (m *memTicketRepo) Cancel(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	switch t.Status {
	case domain.TicketUsed:
		return nil, domain.ErrAlreadyUsed
	case domain.TicketCancelled:
		cp := *t
		return &cp, nil
	}
	t.Status = domain.TicketCancelled
	cp := *t
	return &cp, nil
}

func (m *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTicketRepo) ListByHolder(ctx context.Context, holderID string) ([]*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Ticket
	for _, t := range m.tickets {
		if t.HolderID == holderID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (m *memTicketRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.EventTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EventTicket
	for _, t := range m.tickets {
		if t.EventID != eventID {
			continue
		}
		et := &domain.EventTicket{Ticket: *t}
		if h, ok := m.holders.holders[t.HolderID]; ok {
			et.HolderEmail = h.Email
			et.HolderName = h.DisplayName
		}
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (m *memTicketRepo) issuedCount(eventID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tickets {
		if t.EventID == eventID && t.Status == domain.TicketIssued {
			n++
		}
	}
	return n
}

// memDeliveryLog mirrors the postgres delivery log: the sent-check on
// enqueue, leased claims, and the per-send-key at-most-once sent transition
// all run under one mutex.
type memDeliveryLog struct {
	mu      sync.Mutex
	entries map[string]*domain.DeliveryLogEntry
	// enqueueErr, when set, makes EnqueueIfNotSent fail.
	enqueueErr error
}

func newMemDeliveryLog() *memDeliveryLog {
	return &memDeliveryLog{entries: map[string]*domain.DeliveryLogEntry{}}
}

func (m *memDeliveryLog) EnqueueIfNotSent(ctx context.Context, e *domain.DeliveryLogEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return false, m.enqueueErr
	}
	for _, existing := range m.entries {
		if existing.SendKey == e.SendKey && existing.Status == domain.DeliverySent {
			return false, nil
		}
	}
	cp := *e
	m.entries[e.ID] = &cp
	return true, nil
}

func (m *memDeliveryLog) ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*domain.DeliveryLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sentKeys := map[string]bool{}
	for _, e := range m.entries {
		if e.Status == domain.DeliverySent {
			sentKeys[e.SendKey] = true
		}
	}
	var due []*domain.DeliveryLogEntry
	for _, e := range m.entries {
		if e.Status == domain.DeliveryQueued && !e.NextAttemptAt.After(now) && !sentKeys[e.SendKey] {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	var out []*domain.DeliveryLogEntry
	for _, e := range due {
		e.NextAttemptAt = now.Add(lease)
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memDeliveryLog) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false, errors.New("no such entry")
	}
	if e.Status == domain.DeliverySent {
		return false, nil
	}
	for _, other := range m.entries {
		if other.SendKey == e.SendKey && other.Status == domain.DeliverySent {
			return false, nil
		}
	}
	e.Status = domain.DeliverySent
	sentAt := at
	e.SentAt = &sentAt
	return true, nil
}

func (m *memDeliveryLog) RecordFailure(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time, exhausted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return errors.New("no such entry")
	}
	if e.Status == domain.DeliverySent {
		return nil
	}
	e.Attempts = attempts
	e.LastError = lastError
	if exhausted {
		e.Status = domain.DeliveryFailed
	} else {
		e.NextAttemptAt = nextAttemptAt
	}
	return nil
}

func (m *memDeliveryLog) ListByStatus(ctx context.Context, status domain.DeliveryStatus, limit int) ([]*domain.DeliveryLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.DeliveryLogEntry
	for _, e := range m.entries {
		if e.Status == status {
			cp := *e
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memDeliveryLog) byStatus(status domain.DeliveryStatus) []*domain.DeliveryLogEntry {
	out, _ := m.ListByStatus(context.Background(), status, 1000)
	return out
}

// fakeMailer fails the first failures sends, then succeeds.
type fakeMailer struct {
	mu       sync.Mutex
	failures int
	sent     []*domain.EmailMessage
	attempts int
}

func (f *fakeMailer) Send(ctx context.Context, msg *domain.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("transport unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMailer) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	calls   []string
	records []string
}

func (f *fakeLimiter) Allow(ctx context.Context, recipient string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recipient)
	return f.allowed, nil
}

func (f *fakeLimiter) Record(ctx context.Context, recipient string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recipient)
	return nil
}

type stubRenderer struct{}

func (stubRenderer) Render(templateName string, data any) (string, string, string, error) {
	return "subject", "<p>html</p>", "text", nil
}

type stubSigner struct{}

func (stubSigner) Sign(ticketID, email string) (string, error) {
	return "token-" + ticketID, nil
}

func (stubSigner) Verify(token string) (string, string, error) {
	if len(token) > 6 && token[:6] == "token-" {
		return token[6:], "", nil
	}
	return "", "", errors.New("bad token")
}

// recordingQueue captures enqueues for issuance tests.
type recordingQueue struct {
	mu      sync.Mutex
	tickets []string
	err     error
}

func (q *recordingQueue) Enqueue(ctx context.Context, ticketID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tickets = append(q.tickets, ticketID)
	return nil
}

func (q *recordingQueue) Resend(ctx context.Context, ticketID, holderID string) error {
	return q.Enqueue(ctx, ticketID)
}

func (q *recordingQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.tickets...)
}
