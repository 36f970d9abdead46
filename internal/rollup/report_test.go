package rollup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_ReferenceFixture(t *testing.T) {
	engine, store := setupEngine(t)
	seedReferenceFixture(t, store)

	root, err := engine.Rollup(context.Background(), "wma20120", 1)
	require.NoError(t, err)

	want := `[ASM] wma20120  qty 1  @ 50.00
  [PART] csp0030  qty 4  @ 2.50
  [ASM] sub_asm  qty 2  @ 15.00
    [PART] csp0031  qty 4  @ 3.75
    [PART] csp0032  qty 2  @ 5.00
    Subtotal: 55.00 = 30.00 (Assembly) + 25.00 (Children)
  Subtotal: 115.00 = 50.00 (Assembly) + 65.00 (Children)
Total Estimated Cost: 115.00
`
	assert.Equal(t, want, Render(root))
}

func TestRender_NoPriceMarker(t *testing.T) {
	engine, store := setupEngine(t)
	addItem(t, store, "csp0030", "")

	node, err := engine.Rollup(context.Background(), "csp0030", 1)
	require.NoError(t, err)

	out := Render(node)
	assert.Contains(t, out, "@ (no price)")
	assert.Contains(t, out, "Total Estimated Cost: 0.00")
}

func TestRender_CycleMarker(t *testing.T) {
	engine, store := setupEngine(t)
	addItem(t, store, "a", "1.00")
	addEdge(t, store, "a", "a", 1)

	node, err := engine.Rollup(context.Background(), "a", 1)
	require.NoError(t, err)

	out := Render(node)
	assert.Contains(t, out, "[CYCLE] a")
	assert.Contains(t, out, "circular reference, not expanded")
}
