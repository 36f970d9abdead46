package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	// Use in-memory database for testing
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, store)
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	assert.NotNil(t, store)
	assert.NotNil(t, store.db)
}

func TestCreateItem_Defaults(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	item := &Item{ItemNumber: "csp0030"}
	err := store.CreateItem(ctx, item)
	require.NoError(t, err)

	retrieved, err := store.GetItem(ctx, "csp0030")
	require.NoError(t, err)
	assert.Equal(t, "A", retrieved.Revision)
	assert.Equal(t, 1, retrieved.Iteration)
	assert.Equal(t, StateDesign, retrieved.LifecycleState)
	assert.Nil(t, retrieved.PriceEst)
}

func TestCreateItem_Duplicate(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	err := store.CreateItem(ctx, &Item{ItemNumber: "csp0030"})
	require.NoError(t, err)

	err = store.CreateItem(ctx, &Item{ItemNumber: "csp0030"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetItem_NotFound(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	_, err := store.GetItem(context.Background(), "wma99999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetItemPrice(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: "csp0030"}))

	price := decimal.RequireFromString("2.50")
	err := store.SetItemPrice(ctx, "csp0030", price)
	require.NoError(t, err)

	retrieved, err := store.GetItem(ctx, "csp0030")
	require.NoError(t, err)
	require.NotNil(t, retrieved.PriceEst)
	assert.True(t, retrieved.PriceEst.Equal(price))
}

func TestSetItemPrice_NotFound(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	err := store.SetItemPrice(context.Background(), "missing", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetItemState(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: "csp0030"}))

	err := store.SetItemState(ctx, "csp0030", StateReleased)
	require.NoError(t, err)

	retrieved, err := store.GetItem(ctx, "csp0030")
	require.NoError(t, err)
	assert.Equal(t, StateReleased, retrieved.LifecycleState)
}

func TestCreateFile(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: "csp0030"}))

	file := &FileRecord{
		ItemNumber: "csp0030",
		FilePath:   "/vault/csp0030.prt",
		FileType:   "cad",
		Revision:   "A",
		Iteration:  1,
	}
	err := store.CreateFile(ctx, file)
	require.NoError(t, err)
	assert.Greater(t, file.ID, int64(0))

	// Same (item, path) violates the uniqueness key
	dup := &FileRecord{
		ItemNumber: "csp0030",
		FilePath:   "/vault/csp0030.prt",
		FileType:   "cad",
		Revision:   "A",
		Iteration:  1,
	}
	err = store.CreateFile(ctx, dup)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Same path under a different item is fine
	require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: "csp0031"}))
	other := &FileRecord{
		ItemNumber: "csp0031",
		FilePath:   "/vault/csp0030.prt",
		FileType:   "cad",
		Revision:   "A",
		Iteration:  1,
	}
	assert.NoError(t, store.CreateFile(ctx, other))
}

func TestGetFile_NotFound(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	_, err := store.GetFile(context.Background(), "csp0030", "/vault/missing.prt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFilesByItem(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: "csp0030"}))

	for _, path := range []string{"/vault/csp0030.prt", "/vault/dxf/csp0030_dxf.dxf"} {
		require.NoError(t, store.CreateFile(ctx, &FileRecord{
			ItemNumber: "csp0030",
			FilePath:   path,
			FileType:   "cad",
			Revision:   "A",
			Iteration:  1,
		}))
	}

	files, err := store.ListFilesByItem(ctx, "csp0030")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestEnqueueAndListWork(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	task := &WorkTask{
		ItemNumber: "csp0030",
		FilePath:   "/vault/csp0030.prt",
		TaskType:   TaskParamSync,
	}
	err := store.EnqueueWork(ctx, task)
	require.NoError(t, err)
	assert.Greater(t, task.ID, int64(0))

	// Append-only: duplicates are allowed
	require.NoError(t, store.EnqueueWork(ctx, &WorkTask{
		ItemNumber: "csp0030",
		FilePath:   "/vault/csp0030.prt",
		TaskType:   TaskGeomSync,
	}))

	tasks, err := store.ListWork(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, TaskParamSync, tasks[0].TaskType)
	assert.Equal(t, TaskGeomSync, tasks[1].TaskType)
}

func TestBOMEdges(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	for _, n := range []string{"wma20120", "csp0030", "sub_asm"} {
		require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: n}))
	}

	require.NoError(t, store.CreateBOMEdge(ctx, &BOMEdge{ParentItem: "wma20120", ChildItem: "csp0030", Quantity: 4}))
	require.NoError(t, store.CreateBOMEdge(ctx, &BOMEdge{ParentItem: "wma20120", ChildItem: "sub_asm", Quantity: 2}))

	// Duplicate (parent, child) violates the primary key
	err := store.CreateBOMEdge(ctx, &BOMEdge{ParentItem: "wma20120", ChildItem: "csp0030", Quantity: 1})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	children, err := store.ListChildren(ctx, "wma20120")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "csp0030", children[0].ChildItem)
	assert.Equal(t, int64(4), children[0].Quantity)

	count, err := store.CountParents(ctx, "csp0030")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.DeleteBOMByParent(ctx, "wma20120"))
	children, err = store.ListChildren(ctx, "wma20120")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestBOMEdge_UnknownItemRejected(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: "wma20120"}))

	// Foreign keys are enabled; edges must reference existing items
	err := store.CreateBOMEdge(ctx, &BOMEdge{ParentItem: "wma20120", ChildItem: "ghost", Quantity: 1})
	assert.Error(t, err)
}

func TestTransaction_ReplaceEdgesAtomically(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	for _, n := range []string{"wma20120", "csp0030", "csp0031"} {
		require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: n}))
	}
	require.NoError(t, store.CreateBOMEdge(ctx, &BOMEdge{ParentItem: "wma20120", ChildItem: "csp0030", Quantity: 2}))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteBOMByParent(ctx, "wma20120"))
	require.NoError(t, tx.CreateBOMEdge(ctx, &BOMEdge{ParentItem: "wma20120", ChildItem: "csp0031", Quantity: 3}))
	require.NoError(t, tx.Commit())

	children, err := store.ListChildren(ctx, "wma20120")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "csp0031", children[0].ChildItem)
	assert.Equal(t, int64(3), children[0].Quantity)
}

func TestTransaction_RollbackLeavesEdgesIntact(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	for _, n := range []string{"wma20120", "csp0030"} {
		require.NoError(t, store.CreateItem(ctx, &Item{ItemNumber: n}))
	}
	require.NoError(t, store.CreateBOMEdge(ctx, &BOMEdge{ParentItem: "wma20120", ChildItem: "csp0030", Quantity: 2}))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteBOMByParent(ctx, "wma20120"))
	require.NoError(t, tx.Rollback())

	children, err := store.ListChildren(ctx, "wma20120")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, int64(2), children[0].Quantity)
}

func TestTransaction_NestedNotSupported(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(context.Background())
	assert.Error(t, err)
}
