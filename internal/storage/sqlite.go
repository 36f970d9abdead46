package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, store: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx    *sql.Tx
	store *SQLiteStore
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// isUniqueViolation reports whether err is a uniqueness constraint failure.
// Both supported drivers surface the SQLite message text verbatim.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// priceString converts an optional price into its stored representation.
func priceString(price *decimal.Decimal) interface{} {
	if price == nil {
		return nil
	}
	return price.String()
}

// scanPrice converts a stored price column back into an optional decimal.
func scanPrice(raw sql.NullString) (*decimal.Decimal, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored price %q: %w", raw.String, err)
	}
	return &d, nil
}

// Item operations

// createItemWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) createItemWithQuerier(ctx context.Context, q querier, item *Item) error {
	if item.Revision == "" {
		item.Revision = "A"
	}
	if item.Iteration == 0 {
		item.Iteration = 1
	}
	if item.LifecycleState == "" {
		item.LifecycleState = StateDesign
	}

	query := `
		INSERT INTO items (item_number, revision, iteration, lifecycle_state, price_est, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		item.ItemNumber, item.Revision, item.Iteration,
		item.LifecycleState, priceString(item.PriceEst), now, now)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) CreateItem(ctx context.Context, item *Item) error {
	return s.createItemWithQuerier(ctx, s.querier(), item)
}

// getItemWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getItemWithQuerier(ctx context.Context, q querier, itemNumber string) (*Item, error) {
	query := `
		SELECT item_number, revision, iteration, lifecycle_state, price_est, created_at, updated_at
		FROM items
		WHERE item_number = ?
	`
	var item Item
	var price sql.NullString
	err := q.QueryRowContext(ctx, query, itemNumber).Scan(
		&item.ItemNumber, &item.Revision, &item.Iteration,
		&item.LifecycleState, &price, &item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	item.PriceEst, err = scanPrice(price)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, itemNumber string) (*Item, error) {
	return s.getItemWithQuerier(ctx, s.querier(), itemNumber)
}

// setItemPriceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) setItemPriceWithQuerier(ctx context.Context, q querier, itemNumber string, price decimal.Decimal) error {
	query := `UPDATE items SET price_est = ?, updated_at = ? WHERE item_number = ?`
	result, err := q.ExecContext(ctx, query, price.String(), time.Now(), itemNumber)
	if err != nil {
		return fmt.Errorf("failed to set item price: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetItemPrice(ctx context.Context, itemNumber string, price decimal.Decimal) error {
	return s.setItemPriceWithQuerier(ctx, s.querier(), itemNumber, price)
}

// setItemStateWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) setItemStateWithQuerier(ctx context.Context, q querier, itemNumber, state string) error {
	query := `UPDATE items SET lifecycle_state = ?, updated_at = ? WHERE item_number = ?`
	result, err := q.ExecContext(ctx, query, state, time.Now(), itemNumber)
	if err != nil {
		return fmt.Errorf("failed to set item state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetItemState(ctx context.Context, itemNumber, state string) error {
	return s.setItemStateWithQuerier(ctx, s.querier(), itemNumber, state)
}

// File operations

// createFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) createFileWithQuerier(ctx context.Context, q querier, file *FileRecord) error {
	query := `
		INSERT INTO files (item_number, file_path, file_type, revision, iteration, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		file.ItemNumber, file.FilePath, file.FileType,
		file.Revision, file.Iteration, now)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	file.ID = id
	file.CreatedAt = now
	return nil
}

func (s *SQLiteStore) CreateFile(ctx context.Context, file *FileRecord) error {
	return s.createFileWithQuerier(ctx, s.querier(), file)
}

// getFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getFileWithQuerier(ctx context.Context, q querier, itemNumber, filePath string) (*FileRecord, error) {
	query := `
		SELECT id, item_number, file_path, file_type, revision, iteration, created_at
		FROM files
		WHERE item_number = ? AND file_path = ?
	`
	var file FileRecord
	err := q.QueryRowContext(ctx, query, itemNumber, filePath).Scan(
		&file.ID, &file.ItemNumber, &file.FilePath, &file.FileType,
		&file.Revision, &file.Iteration, &file.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *SQLiteStore) GetFile(ctx context.Context, itemNumber, filePath string) (*FileRecord, error) {
	return s.getFileWithQuerier(ctx, s.querier(), itemNumber, filePath)
}

// listFilesByItemWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listFilesByItemWithQuerier(ctx context.Context, q querier, itemNumber string) ([]*FileRecord, error) {
	query := `
		SELECT id, item_number, file_path, file_type, revision, iteration, created_at
		FROM files
		WHERE item_number = ?
		ORDER BY file_path
	`
	rows, err := q.QueryContext(ctx, query, itemNumber)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*FileRecord, 0)
	for rows.Next() {
		var file FileRecord
		err := rows.Scan(
			&file.ID, &file.ItemNumber, &file.FilePath, &file.FileType,
			&file.Revision, &file.Iteration, &file.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, &file)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) ListFilesByItem(ctx context.Context, itemNumber string) ([]*FileRecord, error) {
	return s.listFilesByItemWithQuerier(ctx, s.querier(), itemNumber)
}

// Work queue operations

// enqueueWorkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) enqueueWorkWithQuerier(ctx context.Context, q querier, task *WorkTask) error {
	query := `
		INSERT INTO work_queue (item_number, file_path, task_type, created_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, task.ItemNumber, task.FilePath, task.TaskType, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue work: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

func (s *SQLiteStore) EnqueueWork(ctx context.Context, task *WorkTask) error {
	return s.enqueueWorkWithQuerier(ctx, s.querier(), task)
}

// listWorkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listWorkWithQuerier(ctx context.Context, q querier, limit int) ([]*WorkTask, error) {
	query := `
		SELECT id, item_number, file_path, task_type, created_at
		FROM work_queue
		ORDER BY id
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*WorkTask, 0)
	for rows.Next() {
		var task WorkTask
		err := rows.Scan(&task.ID, &task.ItemNumber, &task.FilePath, &task.TaskType, &task.CreatedAt)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) ListWork(ctx context.Context, limit int) ([]*WorkTask, error) {
	return s.listWorkWithQuerier(ctx, s.querier(), limit)
}

// BOM operations

// deleteBOMByParentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) deleteBOMByParentWithQuerier(ctx context.Context, q querier, parentItem string) error {
	query := `DELETE FROM bom WHERE parent_item = ?`
	_, err := q.ExecContext(ctx, query, parentItem)
	return err
}

func (s *SQLiteStore) DeleteBOMByParent(ctx context.Context, parentItem string) error {
	return s.deleteBOMByParentWithQuerier(ctx, s.querier(), parentItem)
}

// createBOMEdgeWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) createBOMEdgeWithQuerier(ctx context.Context, q querier, edge *BOMEdge) error {
	query := `
		INSERT INTO bom (parent_item, child_item, quantity, created_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query, edge.ParentItem, edge.ChildItem, edge.Quantity, now)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create BOM edge: %w", err)
	}
	edge.CreatedAt = now
	return nil
}

func (s *SQLiteStore) CreateBOMEdge(ctx context.Context, edge *BOMEdge) error {
	return s.createBOMEdgeWithQuerier(ctx, s.querier(), edge)
}

// listChildrenWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listChildrenWithQuerier(ctx context.Context, q querier, parentItem string) ([]*BOMEdge, error) {
	query := `
		SELECT parent_item, child_item, quantity, created_at
		FROM bom
		WHERE parent_item = ?
		ORDER BY child_item
	`
	rows, err := q.QueryContext(ctx, query, parentItem)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	edges := make([]*BOMEdge, 0)
	for rows.Next() {
		var edge BOMEdge
		err := rows.Scan(&edge.ParentItem, &edge.ChildItem, &edge.Quantity, &edge.CreatedAt)
		if err != nil {
			return nil, err
		}
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}

func (s *SQLiteStore) ListChildren(ctx context.Context, parentItem string) ([]*BOMEdge, error) {
	return s.listChildrenWithQuerier(ctx, s.querier(), parentItem)
}

// countParentsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) countParentsWithQuerier(ctx context.Context, q querier, childItem string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM bom WHERE child_item = ?", childItem).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStore) CountParents(ctx context.Context, childItem string) (int, error) {
	return s.countParentsWithQuerier(ctx, s.querier(), childItem)
}

// Transaction implementations - delegate to the store's querier helpers

func (t *sqliteTx) CreateItem(ctx context.Context, item *Item) error {
	return t.store.createItemWithQuerier(ctx, t.querier(), item)
}

func (t *sqliteTx) GetItem(ctx context.Context, itemNumber string) (*Item, error) {
	return t.store.getItemWithQuerier(ctx, t.querier(), itemNumber)
}

func (t *sqliteTx) SetItemPrice(ctx context.Context, itemNumber string, price decimal.Decimal) error {
	return t.store.setItemPriceWithQuerier(ctx, t.querier(), itemNumber, price)
}

func (t *sqliteTx) SetItemState(ctx context.Context, itemNumber, state string) error {
	return t.store.setItemStateWithQuerier(ctx, t.querier(), itemNumber, state)
}

func (t *sqliteTx) CreateFile(ctx context.Context, file *FileRecord) error {
	return t.store.createFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, itemNumber, filePath string) (*FileRecord, error) {
	return t.store.getFileWithQuerier(ctx, t.querier(), itemNumber, filePath)
}

func (t *sqliteTx) ListFilesByItem(ctx context.Context, itemNumber string) ([]*FileRecord, error) {
	return t.store.listFilesByItemWithQuerier(ctx, t.querier(), itemNumber)
}

func (t *sqliteTx) EnqueueWork(ctx context.Context, task *WorkTask) error {
	return t.store.enqueueWorkWithQuerier(ctx, t.querier(), task)
}

func (t *sqliteTx) ListWork(ctx context.Context, limit int) ([]*WorkTask, error) {
	return t.store.listWorkWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) DeleteBOMByParent(ctx context.Context, parentItem string) error {
	return t.store.deleteBOMByParentWithQuerier(ctx, t.querier(), parentItem)
}

func (t *sqliteTx) CreateBOMEdge(ctx context.Context, edge *BOMEdge) error {
	return t.store.createBOMEdgeWithQuerier(ctx, t.querier(), edge)
}

func (t *sqliteTx) ListChildren(ctx context.Context, parentItem string) ([]*BOMEdge, error) {
	return t.store.listChildrenWithQuerier(ctx, t.querier(), parentItem)
}

func (t *sqliteTx) CountParents(ctx context.Context, childItem string) (int, error) {
	return t.store.countParentsWithQuerier(ctx, t.querier(), childItem)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
