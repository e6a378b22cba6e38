// Package dbtest opens throwaway sqlite databases carrying the checkout schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/beadshop-backend/pkg/db"
)

// schema mirrors the goose migrations with sqlite types. Money is stored as
// TEXT so decimals round-trip exactly.
var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL,
		title TEXT NOT NULL,
		image_url TEXT,
		price TEXT NOT NULL,
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		is_made_to_order BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT,
		last_name TEXT,
		role TEXT NOT NULL DEFAULT 'customer',
		email_verified BOOLEAN NOT NULL DEFAULT 0,
		bonus_points INTEGER NOT NULL DEFAULT 0,
		total_spent TEXT NOT NULL DEFAULT '0',
		loyalty_status TEXT NOT NULL DEFAULT 'human',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		user_id TEXT,
		customer_email TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_phone TEXT,
		shipping_address TEXT NOT NULL,
		billing_address TEXT,
		pickup_point_id TEXT,
		subtotal TEXT NOT NULL,
		shipping_cost TEXT NOT NULL,
		tax TEXT NOT NULL,
		bonus_points_used INTEGER NOT NULL DEFAULT 0,
		bonus_points_earned INTEGER NOT NULL DEFAULT 0,
		total TEXT NOT NULL,
		deposit_amount TEXT,
		currency TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL,
		is_made_to_order BOOLEAN NOT NULL DEFAULT 0,
		payment_intent_id TEXT,
		balance_payment_intent_id TEXT,
		tracking_number TEXT,
		tracking_url TEXT,
		admin_notes TEXT,
		loyalty_applied_at DATETIME,
		paid_at DATETIME,
		shipped_at DATETIME,
		delivered_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL,
		title TEXT NOT NULL,
		sku TEXT NOT NULL,
		image_url TEXT,
		unit_price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		subtotal TEXT NOT NULL,
		is_made_to_order BOOLEAN NOT NULL DEFAULT 0,
		stock_at_order INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE payment_attempts (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		stage INTEGER NOT NULL,
		provider TEXT NOT NULL,
		method TEXT NOT NULL,
		external_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		redirect_url TEXT,
		settled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT ux_payment_attempts_provider_external UNIQUE (provider, external_id)
	)`,
	`CREATE TABLE webhook_events (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		external_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		order_id TEXT,
		outcome TEXT NOT NULL,
		processed_at DATETIME NOT NULL,
		CONSTRAINT ux_webhook_events_provider_event UNIQUE (provider, external_event_id)
	)`,
	`CREATE TABLE shipments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE REFERENCES orders(id),
		pickup_point_id TEXT,
		status TEXT NOT NULL,
		carrier_ref TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
}

// Open returns a fresh in-memory database. A single pooled connection keeps
// the database alive for the test and serializes transactions.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:beadshop_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// Client wraps Open in the production client type.
func Client(t *testing.T) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}
