package rollup

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mechvault/mechvault/internal/registry"
	"github.com/mechvault/mechvault/internal/storage"
)

// Node is one entry in a rollup result tree. Quantity is the multiplied
// quantity at this node's scope; TotalCost always equals OwnCost plus the sum
// of the children's TotalCost.
type Node struct {
	ItemNumber   string
	Quantity     int64
	UnitPrice    decimal.Decimal
	NoPrice      bool // item has no price estimate; zero used for arithmetic
	Cycle        bool // item already on its own ancestor path; costs zeroed
	OwnCost      decimal.Decimal
	ChildrenCost decimal.Decimal
	TotalCost    decimal.Decimal
	Children     []*Node
}

// IsAssembly reports whether the node has BOM children.
func (n *Node) IsAssembly() bool {
	return len(n.Children) > 0
}

// Engine computes recursive cost rollups over the persisted BOM graph. It
// only reads; it is safe to invoke from multiple callers concurrently, each
// call carrying its own ancestor chain.
type Engine struct {
	store  storage.Store
	logger *zap.Logger
}

// New creates a rollup engine backed by store.
func New(store storage.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// Rollup computes the total estimated cost of quantity units of itemNumber,
// expanding the full BOM tree depth first. Quantities below one are treated
// as one. Returns storage.ErrNotFound if the root item does not exist.
func (e *Engine) Rollup(ctx context.Context, itemNumber string, quantity int64) (*Node, error) {
	number := registry.Normalize(itemNumber)
	if number == "" {
		return nil, registry.ErrEmptyItemNumber
	}
	if quantity < 1 {
		quantity = 1
	}
	return e.rollup(ctx, number, quantity, nil)
}

// rollup expands one node. chain is the ordered ancestor path from the root
// call down to (but excluding) this item; each recursive call receives a
// fresh copy so one branch's markers never leak into a sibling branch.
func (e *Engine) rollup(ctx context.Context, itemNumber string, quantity int64, chain []string) (*Node, error) {
	node := &Node{ItemNumber: itemNumber, Quantity: quantity}

	for _, ancestor := range chain {
		if ancestor == itemNumber {
			e.logger.Warn("circular BOM reference, branch contributes zero cost",
				zap.String("item", itemNumber),
				zap.Strings("chain", chain))
			node.Cycle = true
			return node, nil
		}
	}

	item, err := e.store.GetItem(ctx, itemNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to look up item %s: %w", itemNumber, err)
	}
	if item.PriceEst == nil {
		node.NoPrice = true
	} else {
		node.UnitPrice = *item.PriceEst
	}

	node.OwnCost = node.UnitPrice.Mul(decimal.NewFromInt(quantity))

	extended := make([]string, len(chain), len(chain)+1)
	copy(extended, chain)
	extended = append(extended, itemNumber)

	edges, err := e.store.ListChildren(ctx, itemNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", itemNumber, err)
	}

	for _, edge := range edges {
		child, err := e.rollup(ctx, edge.ChildItem, quantity*edge.Quantity, extended)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
		node.ChildrenCost = node.ChildrenCost.Add(child.TotalCost)
	}

	node.TotalCost = node.OwnCost.Add(node.ChildrenCost)
	return node, nil
}
