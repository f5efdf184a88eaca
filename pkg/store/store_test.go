package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, &logger.EmptyLogger{}), mock
}

func sampleOrder() models.OpenOrder {
	return models.OpenOrder{
		OrderID:            "0xabc123",
		OriginChainID:      1,
		DestinationChainID: 42161,
		DestinationSettler: "0x5555555555555555555555555555555555555555",
		FillDeadline:       1700000000,
		OrderData:          []byte{0x01, 0x02},
		Status:             models.OrderStatusOpen,
	}
}

func TestInsertIfAbsent(t *testing.T) {
	s, mock := newMockStore(t)
	order := sampleOrder()

	mock.ExpectExec("INSERT IGNORE INTO open_orders").
		WithArgs(order.OrderID, order.OriginChainID, order.DestinationChainID,
			order.DestinationSettler, order.FillDeadline, order.OrderData,
			models.OrderStatusOpen).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.InsertIfAbsent(context.Background(), order))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsentDuplicateIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	order := sampleOrder()

	// INSERT IGNORE on a duplicate key reports zero affected rows.
	mock.ExpectExec("INSERT IGNORE INTO open_orders").
		WithArgs(order.OrderID, order.OriginChainID, order.DestinationChainID,
			order.DestinationSettler, order.FillDeadline, order.OrderData,
			models.OrderStatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.InsertIfAbsent(context.Background(), order))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpiredOpenGroupsByDestination(t *testing.T) {
	s, mock := newMockStore(t)
	now := int64(1700000100)

	columns := []string{"order_id", "origin_chain_id", "destination_chain_id",
		"destination_settler", "fill_deadline", "order_data", "status"}
	rows := sqlmock.NewRows(columns).
		AddRow("0xaaa", int64(1), int64(42161), "0x01", int64(1700000000), []byte{0x01}, "OPEN").
		AddRow("0xbbb", int64(10), int64(42161), "0x02", int64(1700000050), []byte{0x02}, "OPEN").
		AddRow("0xccc", int64(10), int64(1), "0x03", int64(1699999999), []byte{0x03}, "OPEN")

	mock.ExpectQuery("SELECT (.+) FROM open_orders").
		WithArgs(models.OrderStatusOpen, now).
		WillReturnRows(rows)

	grouped, err := s.ListExpiredOpen(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Len(t, grouped[42161], 2)
	assert.Len(t, grouped[1], 1)
	assert.Equal(t, "0xccc", grouped[1][0].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpiredOpenIncludesDeadlineAtNow(t *testing.T) {
	s, mock := newMockStore(t)
	now := int64(1700000000)

	columns := []string{"order_id", "origin_chain_id", "destination_chain_id",
		"destination_settler", "fill_deadline", "order_data", "status"}
	rows := sqlmock.NewRows(columns).
		AddRow("0xeee", int64(1), int64(8453), "0x05", now, []byte{0x05}, "OPEN")

	// An order expiring exactly at the current timestamp is already expired.
	mock.ExpectQuery(`WHERE status = \? AND fill_deadline <= \?`).
		WithArgs(models.OrderStatusOpen, now).
		WillReturnRows(rows)

	grouped, err := s.ListExpiredOpen(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, grouped[8453], 1)
	assert.Equal(t, "0xeee", grouped[8453][0].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRefunding(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE open_orders SET status").
		WithArgs(models.OrderStatusRefunding, "0xaaa", models.OrderStatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := s.ClaimRefunding(context.Background(), "0xaaa")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRefundingAlreadyTaken(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE open_orders SET status").
		WithArgs(models.OrderStatusRefunding, "0xaaa", models.OrderStatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := s.ClaimRefunding(context.Background(), "0xaaa")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE open_orders SET status").
		WithArgs(models.OrderStatusRefunded, "0xaaa").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SetStatus(context.Background(), "0xaaa", models.OrderStatusRefunded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStaleRefunding(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Unix(1700000000, 0)

	columns := []string{"order_id", "origin_chain_id", "destination_chain_id",
		"destination_settler", "fill_deadline", "order_data", "status"}
	rows := sqlmock.NewRows(columns).
		AddRow("0xddd", int64(137), int64(1), "0x04", int64(1699000000), []byte{0x04}, "REFUNDING")

	mock.ExpectQuery("SELECT (.+) FROM open_orders").
		WithArgs(models.OrderStatusRefunding, cutoff).
		WillReturnRows(rows)

	stale, err := s.ListStaleRefunding(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, models.OrderStatusRefunding, stale[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("OPEN", 3).
		AddRow("FILED", 12)

	mock.ExpectQuery("SELECT status, COUNT").WillReturnRows(rows)

	counts, err := s.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.OrderStatusOpen])
	assert.Equal(t, 12, counts[models.OrderStatusFiled])
	assert.NoError(t, mock.ExpectationsWereMet())
}
