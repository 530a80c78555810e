// Package growth estimates vegetation height-growth rates from point-cloud
// surveys of the same area taken in different years.
//
// A run classifies input files by acquisition year, bins the vegetation
// points of every file into a sparse grid of maximum heights, matches grid
// cells across every pair of years and reduces the positive growth rates
// into trimmed statistics per height band ("stretch"). The statistics form a
// Model that is persisted in a line-oriented text file and may be merged
// with the model of a previous run.
//
// No SQL or plotting code is allowed in this package; run history and
// charts live in the storage/sqlite and plots subpackages.
package growth
