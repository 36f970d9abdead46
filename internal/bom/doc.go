// Package bom extracts bills of materials from neutral hierarchy exports.
//
// A hierarchy export is a flattened textual listing of an assembly's
// component tree. Each component reference line names a child once per
// occurrence; grouping those occurrences is how line items become edge
// quantities. Re-processing an export fully replaces the parent's edge set
// inside one transaction, and an export with no recognizable children leaves
// the stored edges untouched.
package bom
