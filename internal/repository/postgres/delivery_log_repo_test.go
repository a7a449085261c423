package postgres

import (
	"context"
	"testing"
	"time"

	"campustickets/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func queuedEntry() *domain.DeliveryLogEntry {
	return &domain.DeliveryLogEntry{
		ID:       "log-uuid-1",
		SendKey:  domain.SendKey("stu@example.com", "t-uuid-1", domain.ConfirmationTemplate),
		To:       "stu@example.com",
		Subject:  "Your ticket for Test Event",
		Template: domain.ConfirmationTemplate,
		Status:   domain.DeliveryQueued,
		TicketID: "t-uuid-1",
		EventID:  "ev-uuid-1",
		Context: domain.DeliveryContext{
			HolderName: "Stu Dent",
			EventTitle: "Test Event",
			TicketID:   "t-uuid-1",
			Payload:    `{"ticket_id":"t-uuid-1"}`,
		},
		CreatedAt: time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestDeliveryLogRepository_EnqueueIfNotSent(t *testing.T) {
	ctx := context.Background()

	t.Run("creates entry when no sent lineage exists", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO delivery_log`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewDeliveryLogRepository(db)
		created, err := repo.EnqueueIfNotSent(ctx, queuedEntry())
		require.NoError(t, err)
		require.True(t, created)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short-circuits when the key was already sent", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO delivery_log`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		repo := NewDeliveryLogRepository(db)
		created, err := repo.EnqueueIfNotSent(ctx, queuedEntry())
		require.NoError(t, err)
		require.False(t, created)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeliveryLogRepository_MarkSent(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 10, 1, 9, 5, 0, 0, time.UTC)

	t.Run("first transition wins", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE delivery_log SET status = 'sent'`).
			WithArgs("log-uuid-1", at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewDeliveryLogRepository(db)
		ok, err := repo.MarkSent(ctx, "log-uuid-1", at)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("racing sent row for the same send key is swallowed", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE delivery_log SET status = 'sent'`).
			WithArgs("log-uuid-1", at).
			WillReturnError(&pq.Error{Code: "23505"})

		repo := NewDeliveryLogRepository(db)
		ok, err := repo.MarkSent(ctx, "log-uuid-1", at)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("already sent entry is untouched", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE delivery_log SET status = 'sent'`).
			WithArgs("log-uuid-1", at).
			WillReturnResult(sqlmock.NewResult(0, 0))

		repo := NewDeliveryLogRepository(db)
		ok, err := repo.MarkSent(ctx, "log-uuid-1", at)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestDeliveryLogRepository_ClaimDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "send_key", "recipient", "subject", "template", "status", "attempts", "last_error", "ticket_id", "event_id", "context", "next_attempt_at", "sent_at", "created_at",
	}).AddRow(
		"log-uuid-1", "key-1", "stu@example.com", "Your ticket for Test Event", domain.ConfirmationTemplate,
		"queued", 1, "transport timeout", "t-uuid-1", "ev-uuid-1",
		[]byte(`{"holder_name":"Stu Dent","event_title":"Test Event","event_when":"","location":"","ticket_id":"t-uuid-1","support_email":"","view_url":"","payload":"{}"}`),
		now.Add(30*time.Second), nil, now.Add(-time.Minute),
	)

	mock.ExpectQuery(`UPDATE delivery_log SET next_attempt_at`).
		WithArgs(10, now, now.Add(30*time.Second)).
		WillReturnRows(rows)

	repo := NewDeliveryLogRepository(db)
	entries, err := repo.ClaimDue(context.Background(), 10, now, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "log-uuid-1", entries[0].ID)
	require.Equal(t, 1, entries[0].Attempts)
	require.Equal(t, "Stu Dent", entries[0].Context.HolderName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryLogRepository_RecordFailure(t *testing.T) {
	ctx := context.Background()
	next := time.Date(2025, 10, 1, 9, 1, 0, 0, time.UTC)

	t.Run("reschedules while attempts remain", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE delivery_log SET attempts`).
			WithArgs("log-uuid-1", 2, "smtp 421", next).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewDeliveryLogRepository(db)
		require.NoError(t, repo.RecordFailure(ctx, "log-uuid-1", 2, "smtp 421", next, false))
	})

	t.Run("marks failed once exhausted", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE delivery_log SET status = 'failed'`).
			WithArgs("log-uuid-1", 5, "smtp 421").
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewDeliveryLogRepository(db)
		require.NoError(t, repo.RecordFailure(ctx, "log-uuid-1", 5, "smtp 421", time.Time{}, true))
	})
}
