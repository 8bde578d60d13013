// Package exporter writes pipeline results as flat CSV files for BI tools.
//
// One file is written per table (purchases_enhanced.csv, each summary,
// vendor_performance.csv, customer_performance.csv), plus metadata.json
// listing what was written. checkins_enhanced.csv is skipped when there are
// no check-ins. Money columns are rounded to two places; nulls are empty.
package exporter
