// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tamzrod/modbus-bridge/internal/model"
)

const (
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 2
	defaultConnLifetime = time.Hour
	defaultPingTimeout  = 5 * time.Second
)

// Postgres implements Store on a pgx/stdlib backed pool.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens and validates a connection pool for the given DSN.
func NewPostgres(dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db}, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// ListEnabledControllers returns every controller flagged enabled.
func (p *Postgres) ListEnabledControllers(ctx context.Context) ([]model.Controller, error) {
	const query = `
		SELECT id, name, host, port, connection_type, data_type,
		       unit_id, start_address, data_length, convention, word_order
		FROM controllers
		WHERE enabled
		ORDER BY host, id
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Controller
	for rows.Next() {
		var (
			c        model.Controller
			unitID   sql.NullInt32
			wordOrd  sql.NullString
			convName sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Host, &c.Port, &c.Connection, &c.DataType,
			&unitID, &c.StartAddress, &c.Length, &convName, &wordOrd,
		); err != nil {
			return nil, err
		}

		c.Enabled = true
		c.UnitID = 1
		if unitID.Valid && unitID.Int32 >= 0 && unitID.Int32 <= 247 {
			c.UnitID = uint8(unitID.Int32)
		}
		if convName.Valid {
			c.Convention = model.Convention(convName.String)
		}
		if wordOrd.Valid {
			c.WordOrder = model.WordOrder(wordOrd.String)
		}

		out = append(out, c)
	}
	return out, rows.Err()
}

// ListMaps returns the controller's maps for one direction.
func (p *Postgres) ListMaps(ctx context.Context, controllerID int64, dir model.Direction) ([]model.Map, error) {
	const query = `
		SELECT id, controller_id, item_id, position, direction
		FROM controller_maps
		WHERE controller_id = $1 AND direction = $2
		ORDER BY position
	`
	rows, err := p.db.QueryContext(ctx, query, controllerID, string(dir))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Map
	for rows.Next() {
		var m model.Map
		if err := rows.Scan(&m.ID, &m.ControllerID, &m.ItemID, &m.Position, &m.Direction); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMonitoringItems returns the full item catalog.
func (p *Postgres) ListMonitoringItems(ctx context.Context) ([]model.MonitoringItem, error) {
	const query = `
		SELECT id, name, scale_enabled,
		       normalized_min, normalized_max, scaled_min, scaled_max
		FROM monitoring_items
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MonitoringItem
	for rows.Next() {
		var it model.MonitoringItem
		if err := rows.Scan(
			&it.ID, &it.Name, &it.ScaleEnabled,
			&it.NormalizedMin, &it.NormalizedMax, &it.ScaledMin, &it.ScaledMax,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListPendingWriteRequests returns the shared pool of pending write
// requests. Staleness is judged by the consumer, not filtered here.
func (p *Postgres) ListPendingWriteRequests(ctx context.Context) ([]model.WriteRequest, error) {
	const query = `
		SELECT item_id, value, EXTRACT(EPOCH FROM requested_at)::bigint, duration_sec
		FROM write_requests
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WriteRequest
	for rows.Next() {
		var r model.WriteRequest
		if err := rows.Scan(&r.ItemID, &r.Value, &r.RequestedAt, &r.DurationSec); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
