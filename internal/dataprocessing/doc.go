// Package dataprocessing turns raw purchase and check-in sheets into enriched
// tables and summary tables.
//
// # Stages
//
//	Table (raw) → Preprocess → Filter (optional) → Enricher → Aggregator → Summaries
//
// Preprocess trims column names and coerces date and price/amount columns.
// The Enricher adds time buckets, profit and dense ranks for customers,
// vendors, locations and (product, vendor) pairs. The Aggregator builds the
// named summary tables (kpis, hourly_sales, top_vendors, ...).
//
// # Schema
//
// Columns are located once per table through a declared Schema, which maps
// each logical Field to its accepted physical names. Stages consult the
// resulting Bindings; a field without a binding skips whatever depends on it.
//
// # Nulls
//
// A cell that fails coercion becomes null; its row is kept. Rows with a null
// grouping key are left out of that group's aggregate and get null joined
// values.
package dataprocessing
