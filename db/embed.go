// Package db embeds the database schema applied on startup.
package db

import _ "embed"

// Schema contains the DDL for the orders, coupon_windows, event_config,
// counters, and journey_events tables.
//
//go:embed migrations/001_schema.sql
var Schema string
