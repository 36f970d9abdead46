package rollup

import (
	"fmt"
	"strings"
)

// Markers used in the rendered report.
const (
	markerAssembly = "[ASM]"
	markerPart     = "[PART]"
	markerCycle    = "[CYCLE]"
)

// Render produces the human-readable indented cost report for a rollup tree.
// Costs are rounded to two decimal places here and nowhere else.
func Render(root *Node) string {
	var b strings.Builder
	renderNode(&b, root, 0)
	fmt.Fprintf(&b, "Total Estimated Cost: %s\n", root.TotalCost.StringFixed(2))
	return b.String()
}

func renderNode(b *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("  ", depth)

	if n.Cycle {
		fmt.Fprintf(b, "%s%s %s  qty %d  (circular reference, not expanded)\n",
			indent, markerCycle, n.ItemNumber, n.Quantity)
		return
	}

	marker := markerPart
	if n.IsAssembly() {
		marker = markerAssembly
	}

	unit := n.UnitPrice.StringFixed(2)
	if n.NoPrice {
		unit = "(no price)"
	}
	fmt.Fprintf(b, "%s%s %s  qty %d  @ %s\n", indent, marker, n.ItemNumber, n.Quantity, unit)

	for _, child := range n.Children {
		renderNode(b, child, depth+1)
	}

	if n.IsAssembly() {
		fmt.Fprintf(b, "%s  Subtotal: %s = %s (Assembly) + %s (Children)\n",
			indent,
			n.TotalCost.StringFixed(2),
			n.OwnCost.StringFixed(2),
			n.ChildrenCost.StringFixed(2))
	}
}
