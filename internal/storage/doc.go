// Package storage provides SQLite-based persistence for PDM data.
//
// The storage layer manages:
//   - Item records (revision, iteration, lifecycle state, price estimate)
//   - BOM edges (direct parent -> child containment with quantities)
//   - Registered files
//   - The append-only work queue consumed by external sync jobs
//
// # Database Schema
//
// Tables:
//   - items: one row per design item, keyed by lowercase item number
//   - bom: parent/child edges, logically keyed by (parent_item, child_item)
//   - files: registered artifacts, unique on (item_number, file_path)
//   - work_queue: append-only follow-up task log
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStore("vault.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	item, err := db.GetItem(ctx, "csp0030")
//
// # Transactions
//
// BOM edge replacement must be atomic; run it inside a transaction:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.DeleteBOMByParent(ctx, parent)
//	for _, e := range edges {
//	    _ = tx.CreateBOMEdge(ctx, e)
//	}
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Build Tags
//
// Two driver configurations are supported:
//
// CGO build (sqlite_cgo tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo"
//
// Pure Go build (default) uses modernc.org/sqlite and needs no C compiler:
//
//	CGO_ENABLED=0 go build
//
// Prices are stored as decimal strings and surfaced as
// github.com/shopspring/decimal values; a NULL price_est means the item has
// no price estimate yet.
package storage
