package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/catalog"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

	"go.uber.org/zap"
)

// RoutingRepository routing entry repository
type RoutingRepository struct {
	db      *sql.DB
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewRoutingRepository creates a new routing repository
func NewRoutingRepository(db *sql.DB, cat *catalog.Catalog, logger *zap.Logger) *RoutingRepository {
	return &RoutingRepository{
		db:      db,
		catalog: cat,
		logger:  logger,
	}
}

// InsertRoutingEntries 在单个事务内写入一批路由条目
func (r *RoutingRepository) InsertRoutingEntries(ctx context.Context, entries []*models.RoutingEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO routing_entries
			(id, order_id, station_id, sequence, priority, routed_at, recall_count, force_completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query,
			e.ID,
			e.OrderID,
			e.StationID,
			e.Sequence,
			e.Priority,
			e.RoutedAt,
			e.RecallCount,
			e.ForceCompleted,
		); err != nil {
			return fmt.Errorf("failed to insert routing entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit routing entries: %w", err)
	}

	r.logger.Debug("Inserted routing entries",
		zap.Int("count", len(entries)),
	)

	return nil
}

// UpdateRoutingEntry 按ID原子更新单个路由条目
// 两个显示屏并发bump同一条目时以服务端最后确认的写入为准（不做合并）
func (r *RoutingRepository) UpdateRoutingEntry(ctx context.Context, id string, patch models.EntryPatch) error {
	if patch.IsZero() {
		return nil
	}

	var sets []string
	var args []interface{}

	addSet := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if patch.ClearStarted {
		sets = append(sets, "started_at = NULL")
	} else if patch.StartedAt != nil {
		addSet("started_at", *patch.StartedAt)
	}
	if patch.ClearCompleted {
		sets = append(sets, "completed_at = NULL")
	} else if patch.CompletedAt != nil {
		addSet("completed_at", *patch.CompletedAt)
	}
	if patch.RecallCount != nil {
		addSet("recall_count", *patch.RecallCount)
	}
	if patch.ForceCompleted != nil {
		addSet("force_completed", *patch.ForceCompleted)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE routing_entries SET %s WHERE id = $%d",
		strings.Join(sets, ", "),
		len(args),
	)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update routing entry %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("routing entry %s not found", id)
	}

	return nil
}

// FetchActiveRoutingEntries 拉取全部活跃路由条目（completed_at IS NULL）
// stationID 非空时只取该工位的条目
// 联表带出订单/桌台/座位数据；工位数据来自只读目录而非数据库
func (r *RoutingRepository) FetchActiveRoutingEntries(ctx context.Context, stationID string) ([]*models.RoutingEntry, error) {
	query := `
		SELECT
			re.id,
			re.order_id,
			re.station_id,
			re.sequence,
			re.priority,
			re.routed_at,
			re.started_at,
			re.completed_at,
			re.recall_count,
			re.force_completed,
			o.items,
			o.kind,
			o.table_id,
			COALESCE(t.label, ''),
			o.seat_id,
			COALESCE(s.label, ''),
			o.created_at,
			o.status
		FROM routing_entries re
		INNER JOIN orders o ON o.id = re.order_id
		LEFT JOIN tables t ON t.id = o.table_id
		LEFT JOIN seats s ON s.id = o.seat_id
		WHERE re.completed_at IS NULL
	`
	args := []interface{}{}
	if stationID != "" {
		query += " AND re.station_id = $1"
		args = append(args, stationID)
	}
	query += " ORDER BY re.routed_at, re.sequence"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active routing entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.RoutingEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate routing entries: %w", err)
	}

	return entries, nil
}

// scanEntry 扫描一行并在存储边界规范化items
func (r *RoutingRepository) scanEntry(rows *sql.Rows) (*models.RoutingEntry, error) {
	var (
		entry      models.RoutingEntry
		order      models.Order
		startedAt  sql.NullTime
		completed  sql.NullTime
		itemsJSON  []byte
		tableID    sql.NullString
		tableLabel string
		seatID     sql.NullString
		seatLabel  string
	)

	if err := rows.Scan(
		&entry.ID,
		&entry.OrderID,
		&entry.StationID,
		&entry.Sequence,
		&entry.Priority,
		&entry.RoutedAt,
		&startedAt,
		&completed,
		&entry.RecallCount,
		&entry.ForceCompleted,
		&itemsJSON,
		&order.Kind,
		&tableID,
		&tableLabel,
		&seatID,
		&seatLabel,
		&order.CreatedAt,
		&order.Status,
	); err != nil {
		return nil, fmt.Errorf("failed to scan routing entry: %w", err)
	}

	if startedAt.Valid {
		entry.StartedAt = &startedAt.Time
	}
	if completed.Valid {
		entry.CompletedAt = &completed.Time
	}

	items, err := models.NormalizeItems(json.RawMessage(itemsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize items for order %s: %w", entry.OrderID, err)
	}

	order.ID = entry.OrderID
	order.Items = items
	order.TableLabel = tableLabel
	order.SeatLabel = seatLabel
	if tableID.Valid {
		order.TableID = &tableID.String
	}
	if seatID.Valid {
		order.SeatID = &seatID.String
	}
	entry.Order = &order

	if station, ok := r.catalog.Get(entry.StationID); ok {
		entry.Station = station
	}

	return &entry, nil
}
