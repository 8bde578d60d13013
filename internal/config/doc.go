// Package config loads application settings.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file (RETAIL_CONFIG, config.yaml or configs/config.yaml) and
// RETAIL_* environment variables. SHAREPOINT_URL is read as the workbook URL
// when RETAIL_SOURCE_URL is not set.
package config
