package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction. Row
// locks taken via FOR UPDATE live until commit or rollback.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const levelColumns = `warehouse_id, item_id, physical::text, reserved::text, avg_cost::text, updated_at`

func scanLevel(row pgx.Row) (StockLevel, error) {
	var (
		level                       StockLevel
		physical, reserved, avgCost string
	)
	if err := row.Scan(&level.WarehouseID, &level.ItemID, &physical, &reserved, &avgCost, &level.UpdatedAt); err != nil {
		return StockLevel{}, err
	}
	var err error
	if level.Physical, err = decimal.NewFromString(physical); err != nil {
		return StockLevel{}, err
	}
	if level.Reserved, err = decimal.NewFromString(reserved); err != nil {
		return StockLevel{}, err
	}
	if level.AvgCost, err = decimal.NewFromString(avgCost); err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

// GetLevel reads the current position without any row lock; the cache is a
// fast-path snapshot, not a serialisation point.
func (r *Repository) GetLevel(ctx context.Context, warehouseID, itemID int64) (StockLevel, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+levelColumns+` FROM stock_levels WHERE warehouse_id=$1 AND item_id=$2`, warehouseID, itemID)
	level, err := scanLevel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{WarehouseID: warehouseID, ItemID: itemID}, ErrLevelNotFound
	}
	return level, err
}

func (r *Repository) ListLevels(ctx context.Context, warehouseID int64) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+levelColumns+` FROM stock_levels WHERE warehouse_id=$1 ORDER BY item_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		level, err := scanLevel(rows)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

const movementColumns = `id, warehouse_id, item_id, kind, quantity::text, unit_cost::text, ref_type, ref_id, ref_number, stock_before::text, stock_after::text, note, posted_at, actor_id`

func scanMovement(rows pgx.Rows) (StockMovement, error) {
	var (
		m                                           StockMovement
		id                                          pgtype.UUID
		quantity, unitCost, stockBefore, stockAfter string
	)
	err := rows.Scan(&id, &m.WarehouseID, &m.ItemID, &m.Kind, &quantity, &unitCost,
		&m.Reference.Type, &m.Reference.ID, &m.Reference.Number, &stockBefore, &stockAfter,
		&m.Note, &m.PostedAt, &m.ActorID)
	if err != nil {
		return StockMovement{}, err
	}
	m.ID = uuid.UUID(id.Bytes)
	if m.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return StockMovement{}, err
	}
	if m.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return StockMovement{}, err
	}
	if m.StockBefore, err = decimal.NewFromString(stockBefore); err != nil {
		return StockMovement{}, err
	}
	if m.StockAfter, err = decimal.NewFromString(stockAfter); err != nil {
		return StockMovement{}, err
	}
	return m, nil
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+`
FROM stock_movements
WHERE warehouse_id=$1
  AND ($2::bigint = 0 OR item_id=$2)
  AND ($3::text = '' OR kind=$3)
  AND posted_at BETWEEN COALESCE($4, '-infinity'::timestamptz) AND COALESCE($5, 'infinity'::timestamptz)
ORDER BY posted_at DESC, id
LIMIT $6`, filter.WarehouseID, filter.ItemID, string(filter.Kind), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []StockMovement{}
	for rows.Next() {
		movement, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}
	return movements, rows.Err()
}

const batchColumns = `id, warehouse_id, item_id, batch_number, received_at, expires_at, unit_cost::text, quantity::text, remaining::text`

func scanBatch(row pgx.Row) (Batch, error) {
	var (
		b                             Batch
		id                            pgtype.UUID
		expiresAt                     pgtype.Timestamptz
		unitCost, quantity, remaining string
	)
	err := row.Scan(&id, &b.WarehouseID, &b.ItemID, &b.BatchNumber, &b.ReceivedAt, &expiresAt, &unitCost, &quantity, &remaining)
	if err != nil {
		return Batch{}, err
	}
	b.ID = uuid.UUID(id.Bytes)
	if expiresAt.Valid {
		b.ExpiresAt = expiresAt.Time
	}
	if b.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return Batch{}, err
	}
	if b.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return Batch{}, err
	}
	if b.Remaining, err = decimal.NewFromString(remaining); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// ListBatches returns the FIFO candidate order for a key.
func (r *Repository) ListBatches(ctx context.Context, warehouseID, itemID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
FROM stock_batches
WHERE warehouse_id=$1 AND item_id=$2
ORDER BY received_at, batch_number`, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []Batch{}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func (r *Repository) SumMovements(ctx context.Context, warehouseID, itemID int64, asOf time.Time) ([]MovementSum, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, COALESCE(SUM(quantity), 0)::text, COALESCE(SUM(quantity * unit_cost), 0)::text
FROM stock_movements
WHERE warehouse_id=$1
  AND ($2::bigint = 0 OR item_id=$2)
  AND posted_at <= COALESCE($3, 'infinity'::timestamptz)
GROUP BY item_id
ORDER BY item_id`, warehouseID, itemID, nullTime(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := []MovementSum{}
	for rows.Next() {
		var (
			sum             MovementSum
			quantity, value string
		)
		if err := rows.Scan(&sum.ItemID, &quantity, &value); err != nil {
			return nil, err
		}
		if sum.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, err
		}
		if sum.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

const reservationColumns = `id, warehouse_id, item_id, reserved::text, fulfilled::text, status, ref_type, ref_id, ref_number, release_reason, created_at, expires_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var (
		res                 Reservation
		id                  pgtype.UUID
		reserved, fulfilled string
		expiresAt           pgtype.Timestamptz
	)
	err := row.Scan(&id, &res.WarehouseID, &res.ItemID, &reserved, &fulfilled, &res.Status,
		&res.Reference.Type, &res.Reference.ID, &res.Reference.Number, &res.ReleaseReason,
		&res.CreatedAt, &expiresAt)
	if err != nil {
		return Reservation{}, err
	}
	res.ID = uuid.UUID(id.Bytes)
	if expiresAt.Valid {
		res.ExpiresAt = expiresAt.Time
	}
	if res.Reserved, err = decimal.NewFromString(reserved); err != nil {
		return Reservation{}, err
	}
	if res.Fulfilled, err = decimal.NewFromString(fulfilled); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func getReservation(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	res, err := scanReservation(q.QueryRow(ctx, query, pgtype.UUID{Bytes: id, Valid: true}))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrReservationNotFound
	}
	return res, err
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return getReservation(ctx, r.pool, id, false)
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+reservationColumns+`
FROM stock_reservations
WHERE status=$1 AND expires_at IS NOT NULL AND expires_at < $2
ORDER BY expires_at
LIMIT $3`, string(ReservationActive), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reservations := []Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func (r *txRepository) InsertMovement(ctx context.Context, movement StockMovement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements
(id, warehouse_id, item_id, kind, quantity, unit_cost, ref_type, ref_id, ref_number, stock_before, stock_after, note, posted_at, actor_id)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10::numeric, $11::numeric, $12, $13, $14)`,
		pgtype.UUID{Bytes: movement.ID, Valid: true}, movement.WarehouseID, movement.ItemID, string(movement.Kind),
		movement.Quantity.String(), movement.UnitCost.String(),
		movement.Reference.Type, movement.Reference.ID, movement.Reference.Number,
		movement.StockBefore.String(), movement.StockAfter.String(),
		movement.Note, movement.PostedAt, movement.ActorID)
	if isUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

func (r *txRepository) GetLevelForUpdate(ctx context.Context, warehouseID, itemID int64) (StockLevel, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+levelColumns+` FROM stock_levels WHERE warehouse_id=$1 AND item_id=$2 FOR UPDATE`, warehouseID, itemID)
	level, err := scanLevel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{WarehouseID: warehouseID, ItemID: itemID}, ErrLevelNotFound
	}
	return level, err
}

func (r *txRepository) UpsertLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (warehouse_id, item_id, physical, reserved, avg_cost, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)
ON CONFLICT (warehouse_id, item_id)
DO UPDATE SET physical=EXCLUDED.physical, reserved=EXCLUDED.reserved, avg_cost=EXCLUDED.avg_cost, updated_at=EXCLUDED.updated_at`,
		level.WarehouseID, level.ItemID, level.Physical.String(), level.Reserved.String(), level.AvgCost.String(), level.UpdatedAt)
	return err
}

func (r *txRepository) FindBatchByNumber(ctx context.Context, warehouseID, itemID int64, batchNumber string) (Batch, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE warehouse_id=$1 AND item_id=$2 AND batch_number=$3 FOR UPDATE`, warehouseID, itemID, batchNumber)
	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return batch, err
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_batches
(id, warehouse_id, item_id, batch_number, received_at, expires_at, unit_cost, quantity, remaining)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric)`,
		pgtype.UUID{Bytes: batch.ID, Valid: true}, batch.WarehouseID, batch.ItemID, batch.BatchNumber,
		batch.ReceivedAt, nullTime(batch.ExpiresAt),
		batch.UnitCost.String(), batch.Quantity.String(), batch.Remaining.String())
	return err
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (Batch, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE id=$1 FOR UPDATE`, pgtype.UUID{Bytes: id, Valid: true})
	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return batch, err
}

func (r *txRepository) UpdateBatch(ctx context.Context, batch Batch) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_batches SET quantity=$2::numeric, remaining=$3::numeric WHERE id=$1`,
		pgtype.UUID{Bytes: batch.ID, Valid: true}, batch.Quantity.String(), batch.Remaining.String())
	return err
}

func (r *txRepository) InsertReservation(ctx context.Context, reservation Reservation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_reservations
(id, warehouse_id, item_id, reserved, fulfilled, status, ref_type, ref_id, ref_number, release_reason, created_at, expires_at)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, $10, $11, $12)`,
		pgtype.UUID{Bytes: reservation.ID, Valid: true}, reservation.WarehouseID, reservation.ItemID,
		reservation.Reserved.String(), reservation.Fulfilled.String(), string(reservation.Status),
		reservation.Reference.Type, reservation.Reference.ID, reservation.Reference.Number,
		reservation.ReleaseReason, reservation.CreatedAt, nullTime(reservation.ExpiresAt))
	return err
}

func (r *txRepository) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return getReservation(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateReservation(ctx context.Context, reservation Reservation) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_reservations
SET fulfilled=$2::numeric, status=$3, release_reason=$4
WHERE id=$1`,
		pgtype.UUID{Bytes: reservation.ID, Valid: true}, reservation.Fulfilled.String(),
		string(reservation.Status), reservation.ReleaseReason)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
