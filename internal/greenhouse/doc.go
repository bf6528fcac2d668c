// Package greenhouse provides the grouping engine for Greenhouse Core.
//
// A greenhouse groups claimed modules regulating one shared enclosure
// around a designated main module. The main module's setpoints are the
// greenhouse climate: secondaries inherit them on join (copy-on-join) and
// whenever a new main is promoted (push-on-promote). Succession after the
// main module withdraws is deterministic: the remaining member with the
// lowest module ID takes over, keeping its own targets; the last member
// leaving dissolves the greenhouse.
//
// All multi-row writes are single SQLite transactions, which together with
// the store's single-writer connection serialises conflicting operations
// on the same greenhouse.
package greenhouse
