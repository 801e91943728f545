package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/pkg/errors"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// Listener is called after a committed write touches table.
type Listener func(table string)

type observers struct {
	mu      sync.RWMutex
	nextID  int
	byTable map[string]map[int]Listener
}

func (o *observers) add(table string, fn Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	if o.byTable[table] == nil {
		o.byTable[table] = make(map[int]Listener)
	}
	o.byTable[table][id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.byTable[table], id)
	}
}

func (o *observers) notify(table string) {
	o.mu.RLock()
	listeners := make([]Listener, 0, len(o.byTable[table]))
	for _, fn := range o.byTable[table] {
		listeners = append(listeners, fn)
	}
	o.mu.RUnlock()

	for _, fn := range listeners {
		fn(table)
	}
}

// Store is the local record store for synced entities. A Store returned to a
// WithTx callback runs every statement inside that transaction.
type Store struct {
	db      *DB
	q       querier
	clock   clock.Clock
	obs     *observers
	touched map[string]bool
}

// NewStore creates a Store over an open, migrated database.
func NewStore(db *DB, c clock.Clock) *Store {
	return &Store{
		db:    db,
		q:     db.DB,
		clock: c,
		obs:   &observers{byTable: make(map[string]map[int]Listener)},
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *DB {
	return s.db
}

// Observe registers fn to run after committed writes to table. The returned
// function unregisters it.
func (s *Store) Observe(table string, fn Listener) func() {
	return s.obs.add(table, fn)
}

// WithTx runs fn inside a single write transaction. Listeners fire once per
// touched table after commit. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx SyncRepository) error) error {
	if s.touched != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "begin transaction", err)
	}

	txStore := &Store{db: s.db, q: tx, clock: s.clock, obs: s.obs, touched: make(map[string]bool)}
	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit transaction", err)
	}

	for table := range txStore.touched {
		s.obs.notify(table)
	}
	return nil
}

func (s *Store) changed(table string) {
	if s.touched != nil {
		s.touched[table] = true
		return
	}
	s.obs.notify(table)
}

// IsNotFound reports whether err is a missing-record error from the store.
func IsNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}

// =====================================================
// Generic entity plumbing
// =====================================================

var syncColumns = []string{"id", "server_id", "local_sync_status", "local_updated_at", "server_updated_at"}

type entity[T any] struct {
	table   string
	columns []string
	// dest returns scan targets for columns and an optional hook run after Scan.
	dest   func(*T) ([]interface{}, func())
	values func(*T) []interface{}
	sync   func(*T) *models.SyncableRecord
}

func (e entity[T]) allColumns() []string {
	return append(append([]string{}, syncColumns...), e.columns...)
}

func (e entity[T]) selectSQL() string {
	return "SELECT " + strings.Join(e.allColumns(), ", ") + " FROM " + e.table
}

func (e entity[T]) scan(sc scanner) (*T, error) {
	v := new(T)
	r := e.sync(v)
	dest, finish := e.dest(v)
	all := append([]interface{}{&r.ID, &r.ServerID, &r.LocalSyncStatus, &r.LocalUpdatedAt, &r.ServerUpdatedAt}, dest...)
	if err := sc.Scan(all...); err != nil {
		return nil, err
	}
	if finish != nil {
		finish()
	}
	return v, nil
}

func (e entity[T]) args(v *T) []interface{} {
	r := e.sync(v)
	return append([]interface{}{r.ID, r.ServerID, r.LocalSyncStatus, r.LocalUpdatedAt, r.ServerUpdatedAt}, e.values(v)...)
}

func (e entity[T]) get(ctx context.Context, q querier, where string, args ...interface{}) (*T, error) {
	v, err := e.scan(q.QueryRowContext(ctx, e.selectSQL()+" WHERE "+where, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s record not found", e.table))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "read "+e.table, err)
	}
	return v, nil
}

func (e entity[T]) list(ctx context.Context, q querier, where, order string, args ...interface{}) ([]*T, error) {
	query := e.selectSQL()
	if where != "" {
		query += " WHERE " + where
	}
	if order != "" {
		query += " ORDER BY " + order
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "query "+e.table, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		v, err := e.scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "scan "+e.table, err)
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "iterating "+e.table)
}

func (e entity[T]) insert(ctx context.Context, q querier, v *T) error {
	cols := e.allColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.table, strings.Join(cols, ", "), placeholders)
	if _, err := q.ExecContext(ctx, query, e.args(v)...); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "insert into "+e.table, err)
	}
	return nil
}

func (e entity[T]) update(ctx context.Context, q querier, v *T) error {
	cols := e.allColumns()[1:]
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	args := e.args(v)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", e.table, strings.Join(sets, ", "))

	res, err := q.ExecContext(ctx, query, append(args[1:], args[0])...)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "update "+e.table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s record not found", e.table))
	}
	return nil
}

// rekey moves a record to a new local id and forgets its remote identity, so
// the next push creates a fresh remote row.
func (e entity[T]) rekey(ctx context.Context, q querier, oldID, newID string) error {
	query := fmt.Sprintf("UPDATE %s SET id = ?, server_id = NULL, server_updated_at = NULL, local_sync_status = ? WHERE id = ?", e.table)
	res, err := q.ExecContext(ctx, query, newID, models.SyncPending, oldID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "rekey "+e.table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s record not found", e.table))
	}
	return nil
}

func (e entity[T]) count(ctx context.Context, q querier, where string, args ...interface{}) (int, error) {
	var n int
	query := "SELECT COUNT(*) FROM " + e.table
	if where != "" {
		query += " WHERE " + where
	}
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "count "+e.table, err)
	}
	return n, nil
}

// CountPending returns the number of records with unpushed local changes.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	return s.countStatus(ctx, models.SyncPending)
}

// CountConflicts returns the number of records awaiting conflict review.
func (s *Store) CountConflicts(ctx context.Context) (int, error) {
	return s.countStatus(ctx, models.SyncConflict)
}

func (s *Store) countStatus(ctx context.Context, status models.LocalSyncStatus) (int, error) {
	counts := []func() (int, error){
		func() (int, error) { return workOrders.count(ctx, s.q, "local_sync_status = ?", status) },
		func() (int, error) { return assets.count(ctx, s.q, "local_sync_status = ?", status) },
		func() (int, error) { return meterReadings.count(ctx, s.q, "local_sync_status = ?", status) },
		func() (int, error) { return photos.count(ctx, s.q, "local_sync_status = ?", status) },
	}

	total := 0
	for _, c := range counts {
		n, err := c()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
