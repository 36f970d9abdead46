package bom

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mechvault/mechvault/internal/registry"
	"github.com/mechvault/mechvault/internal/storage"
)

// ErrNoComponents is returned when a hierarchy export yields no recognizable
// children. The export is treated as non-authoritative and existing edges are
// left untouched.
var ErrNoComponents = errors.New("no components found in hierarchy export")

// componentRe matches one component reference line in a neutral hierarchy
// export: the component keyword, the child identifier, and the part
// designator.
var componentRe = regexp.MustCompile(`(?i)^\s*component\s+"?([A-Za-z0-9_.-]+)"?\s+part\b`)

// Extractor parses neutral hierarchy exports and rewrites the affected
// parent's BOM edges.
type Extractor struct {
	store  storage.Store
	logger *zap.Logger
	locks  *itemLocks
}

// NewExtractor creates a BOM extractor backed by store.
func NewExtractor(store storage.Store, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		store:  store,
		logger: logger,
		locks:  newItemLocks(),
	}
}

// Extract parses the hierarchy export at exportPath and replaces itemNumber's
// BOM edges with the grouped result. Repeated occurrences of one child
// collapse into a single edge whose quantity is the occurrence count, which
// is the only source of quantity information in the system. Returns the
// number of edges written.
//
// Extraction runs for the same parent are mutually excluded; the replacement
// is a single transaction, so readers never observe a partial edge set.
func (e *Extractor) Extract(ctx context.Context, itemNumber, exportPath string) (int, error) {
	parent := registry.Normalize(itemNumber)
	if parent == "" {
		return 0, registry.ErrEmptyItemNumber
	}

	children, order, err := parseExport(exportPath)
	if err != nil {
		return 0, fmt.Errorf("failed to parse hierarchy export %s: %w", exportPath, err)
	}
	if len(children) == 0 {
		e.logger.Warn("hierarchy export has no recognizable children, keeping existing edges",
			zap.String("item", parent),
			zap.String("path", exportPath))
		return 0, ErrNoComponents
	}

	mu := e.locks.lock(parent)
	defer mu.Unlock()

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Children may be first seen here; create stub items so edges always
	// reference existing item numbers.
	for _, child := range append([]string{parent}, order...) {
		err := tx.CreateItem(ctx, &storage.Item{ItemNumber: child})
		if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return 0, fmt.Errorf("failed to ensure item %s: %w", child, err)
		}
	}

	if err := tx.DeleteBOMByParent(ctx, parent); err != nil {
		return 0, fmt.Errorf("failed to delete existing edges: %w", err)
	}

	for _, child := range order {
		edge := &storage.BOMEdge{
			ParentItem: parent,
			ChildItem:  child,
			Quantity:   children[child],
		}
		if err := tx.CreateBOMEdge(ctx, edge); err != nil {
			return 0, fmt.Errorf("failed to insert edge %s -> %s: %w", parent, child, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit edge replacement: %w", err)
	}

	e.logger.Info("BOM edges replaced",
		zap.String("item", parent),
		zap.Int("edges", len(order)))
	return len(order), nil
}

// parseExport scans the export line by line, returning occurrence counts per
// child plus the first-seen order.
func parseExport(path string) (map[string]int64, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	counts := make(map[string]int64)
	order := make([]string, 0)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := componentRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		child := strings.ToLower(m[1])
		if _, seen := counts[child]; !seen {
			order = append(order, child)
		}
		counts[child]++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return counts, order, nil
}
