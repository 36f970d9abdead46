// Package rollup computes manufacturing cost estimates over the BOM graph.
//
// A rollup is a synchronous depth-first expansion of an assembly's component
// tree: each child's quantity is multiplied by every quantity on the path
// above it, own costs are unit price times multiplied quantity, and totals
// roll up bottom to top. Circular references are detected against the
// ancestor path of each branch; the revisited node contributes zero cost and
// is not expanded further.
//
// Costs are exact decimals throughout; rounding happens only when a report
// is rendered.
package rollup
