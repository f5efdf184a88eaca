// Package store persists the open-order ledger backing the refund scanner.
// Every successfully parsed intent is recorded here before fulfillment is
// attempted, so orders that never fill are still refundable after a restart.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS open_orders (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	order_id VARCHAR(66) NOT NULL,
	origin_chain_id BIGINT NOT NULL,
	destination_chain_id BIGINT NOT NULL,
	destination_settler VARCHAR(42) NOT NULL,
	fill_deadline BIGINT NOT NULL,
	order_data MEDIUMBLOB NOT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'OPEN',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	PRIMARY KEY (id),
	UNIQUE KEY uq_order_id (order_id),
	KEY idx_status_deadline (status, fill_deadline)
)`

// Store wraps the MySQL connection holding the open-order ledger.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// New opens the database and ensures the schema exists.
func New(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	s := &Store{db: db, logger: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection, primarily for tests.
func NewWithDB(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create open_orders table: %v", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database liveness, for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertIfAbsent records a newly observed order as OPEN. Re-inserting a
// known order id is a no-op, so repeated observation of the same intent is
// harmless.
func (s *Store) InsertIfAbsent(ctx context.Context, order models.OpenOrder) error {
	const query = `INSERT IGNORE INTO open_orders
		(order_id, origin_chain_id, destination_chain_id, destination_settler, fill_deadline, order_data, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		order.OrderID,
		order.OriginChainID,
		order.DestinationChainID,
		order.DestinationSettler,
		order.FillDeadline,
		order.OrderData,
		models.OrderStatusOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %v", order.OrderID, err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		s.logger.DebugWithChain(order.OriginChainID, "Recorded open order %s", order.OrderID)
	}
	return nil
}

// ListExpiredOpen returns OPEN orders whose fill deadline has passed,
// grouped by destination chain, where the refund transaction is submitted.
func (s *Store) ListExpiredOpen(ctx context.Context, now int64) (map[int64][]models.OpenOrder, error) {
	const query = `SELECT order_id, origin_chain_id, destination_chain_id, destination_settler, fill_deadline, order_data, status
		FROM open_orders
		WHERE status = ? AND fill_deadline <= ?
		ORDER BY destination_chain_id, fill_deadline`

	rows, err := s.db.QueryContext(ctx, query, models.OrderStatusOpen, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired orders: %v", err)
	}
	defer rows.Close()

	grouped := make(map[int64][]models.OpenOrder)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		grouped[order.DestinationChainID] = append(grouped[order.DestinationChainID], order)
	}
	return grouped, rows.Err()
}

// SetStatus unconditionally updates an order's status.
func (s *Store) SetStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	const query = `UPDATE open_orders SET status = ? WHERE order_id = ?`

	if _, err := s.db.ExecContext(ctx, query, status, orderID); err != nil {
		return fmt.Errorf("failed to update order %s to %s: %v", orderID, status, err)
	}
	return nil
}

// ClaimRefunding atomically moves an OPEN order to REFUNDING. It returns
// false when the order was not OPEN, which means another actor already
// claimed or resolved it.
func (s *Store) ClaimRefunding(ctx context.Context, orderID string) (bool, error) {
	const query = `UPDATE open_orders SET status = ? WHERE order_id = ? AND status = ?`

	result, err := s.db.ExecContext(ctx, query,
		models.OrderStatusRefunding, orderID, models.OrderStatusOpen)
	if err != nil {
		return false, fmt.Errorf("failed to claim order %s: %v", orderID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for order %s: %v", orderID, err)
	}
	return rows == 1, nil
}

// ListStaleRefunding returns REFUNDING orders not touched since the cutoff.
// These are claims whose refund attempt died without recording an outcome.
func (s *Store) ListStaleRefunding(ctx context.Context, cutoff time.Time) ([]models.OpenOrder, error) {
	const query = `SELECT order_id, origin_chain_id, destination_chain_id, destination_settler, fill_deadline, order_data, status
		FROM open_orders
		WHERE status = ? AND updated_at < ?`

	rows, err := s.db.QueryContext(ctx, query, models.OrderStatusRefunding, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale refunding orders: %v", err)
	}
	defer rows.Close()

	var orders []models.OpenOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// CountByStatus returns how many orders sit in each status, for the status
// surface and metrics.
func (s *Store) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM open_orders GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %v", err)
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int)
	for rows.Next() {
		var status models.OrderStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan order count: %v", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanOrder(rows *sql.Rows) (models.OpenOrder, error) {
	var order models.OpenOrder
	err := rows.Scan(
		&order.OrderID,
		&order.OriginChainID,
		&order.DestinationChainID,
		&order.DestinationSettler,
		&order.FillDeadline,
		&order.OrderData,
		&order.Status,
	)
	if err != nil {
		return models.OpenOrder{}, fmt.Errorf("failed to scan order row: %v", err)
	}
	return order, nil
}
