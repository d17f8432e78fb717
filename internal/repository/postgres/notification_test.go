package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
)

func TestNotificationRepository_CreateAndListUndelivered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewNotificationRepository(mock)

	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	n := model.Notification{NotificationID: "n-1", UserID: "u1", AuctionID: "a1", Message: "You have been outbid", CreatedAt: at}

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(n.NotificationID, n.UserID, n.AuctionID, n.Message, false, n.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM notifications WHERE user_id = \\$1 AND NOT delivered").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "auction_id", "message", "delivered", "created_at"}).
			AddRow(n.NotificationID, n.UserID, n.AuctionID, n.Message, false, n.CreatedAt))

	require.NoError(t, repo.CreateNotification(context.Background(), n))
	pending, err := repo.ListUndelivered(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, n, pending[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkDelivered(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		wantErr error
	}{
		{name: "marked", rows: 1},
		{name: "missing", rows: 0, wantErr: auctionerrors.ErrNotificationNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			repo := NewNotificationRepository(mock)

			mock.ExpectExec("UPDATE notifications SET delivered").
				WithArgs("n-1").
				WillReturnResult(pgxmock.NewResult("UPDATE", tc.rows))

			err = repo.MarkDelivered(context.Background(), "n-1")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
