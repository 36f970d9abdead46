package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Lifecycle states for items. Mutated by check-in/release workflows, not by
// the ingestion pipeline.
const (
	StateDesign   = "Design"
	StateReview   = "Review"
	StateReleased = "Released"
	StateObsolete = "Obsolete"
)

// Work queue task types consumed by external synchronization jobs.
const (
	TaskParamSync = "param_sync"
	TaskGeomSync  = "geom_sync"
)

// Store defines the interface for persisting and querying PDM data
type Store interface {
	// Item operations
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, itemNumber string) (*Item, error)
	SetItemPrice(ctx context.Context, itemNumber string, price decimal.Decimal) error
	SetItemState(ctx context.Context, itemNumber string, state string) error

	// File operations
	CreateFile(ctx context.Context, file *FileRecord) error
	GetFile(ctx context.Context, itemNumber, filePath string) (*FileRecord, error)
	ListFilesByItem(ctx context.Context, itemNumber string) ([]*FileRecord, error)

	// Work queue operations
	EnqueueWork(ctx context.Context, task *WorkTask) error
	ListWork(ctx context.Context, limit int) ([]*WorkTask, error)

	// BOM operations
	DeleteBOMByParent(ctx context.Context, parentItem string) error
	CreateBOMEdge(ctx context.Context, edge *BOMEdge) error
	ListChildren(ctx context.Context, parentItem string) ([]*BOMEdge, error)
	CountParents(ctx context.Context, childItem string) (int, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Store // Embed Store interface for transaction operations
}

// Item represents a design item (part or assembly) identified by its
// lowercase item number.
type Item struct {
	ItemNumber     string
	Revision       string
	Iteration      int
	LifecycleState string
	PriceEst       *decimal.Decimal // nil = no price estimate
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BOMEdge represents a direct parent -> child containment relationship.
// Quantity counts how many times the child appears directly under the parent.
type BOMEdge struct {
	ParentItem string
	ChildItem  string
	Quantity   int64
	CreatedAt  time.Time
}

// FileRecord represents a stored artifact registered against an item.
// Uniqueness key is (item_number, file_path).
type FileRecord struct {
	ID         int64
	ItemNumber string
	FilePath   string
	FileType   string
	Revision   string
	Iteration  int
	CreatedAt  time.Time
}

// WorkTask represents an append-only work queue entry consumed by external
// synchronization collaborators.
type WorkTask struct {
	ID         int64
	ItemNumber string
	FilePath   string
	TaskType   string
	CreatedAt  time.Time
}
