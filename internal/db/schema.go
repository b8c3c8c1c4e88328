package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id            INTEGER PRIMARY KEY,
    name          TEXT NOT NULL,
    unit_price    TEXT NOT NULL DEFAULT '0',
    initial_qty   INTEGER NOT NULL CHECK (initial_qty >= 0),
    remaining_qty INTEGER NOT NULL,
    photo         BLOB,
    photo_mime    TEXT,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    delisted_at   DATETIME,
    CHECK (remaining_qty >= 0 AND remaining_qty <= initial_qty)
);

CREATE TABLE IF NOT EXISTS claims (
    id           INTEGER PRIMARY KEY,
    item_id      INTEGER NOT NULL REFERENCES items(id),
    actor_id     INTEGER NOT NULL,
    display_name TEXT,
    seq          INTEGER NOT NULL,
    status       TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'cancelled')),
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_claims_item_status ON claims(item_id, status);
CREATE INDEX IF NOT EXISTS idx_claims_actor_status ON claims(actor_id, status);

CREATE TABLE IF NOT EXISTS orders (
    id                 INTEGER PRIMARY KEY,
    invoice_no         TEXT UNIQUE,
    buyer_id           INTEGER NOT NULL,
    buyer_name         TEXT,
    delivery_method    TEXT NOT NULL CHECK (delivery_method IN ('tracked', 'self')),
    cards_subtotal     TEXT NOT NULL DEFAULT '0',
    delivery_fee       TEXT NOT NULL DEFAULT '0',
    total              TEXT NOT NULL DEFAULT '0',
    status             TEXT NOT NULL DEFAULT 'awaiting_payment'
                       CHECK (status IN ('awaiting_payment', 'verifying', 'awaiting_address',
                                         'packing_pending', 'packed', 'shipped', 'cancelled')),
    payment_proof_ref  TEXT,
    payment_proof_kind TEXT,
    tracking_number    TEXT,
    shipping_proof_ref TEXT,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS order_lines (
    id         INTEGER PRIMARY KEY,
    order_id   INTEGER NOT NULL REFERENCES orders(id),
    item_id    INTEGER NOT NULL,
    name       TEXT NOT NULL,
    unit_price TEXT NOT NULL,
    qty        INTEGER NOT NULL CHECK (qty > 0)
);

CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(order_id);

CREATE TABLE IF NOT EXISTS addresses (
    order_id  INTEGER PRIMARY KEY REFERENCES orders(id),
    name      TEXT NOT NULL,
    street    TEXT NOT NULL,
    unit      TEXT NOT NULL,
    postal    TEXT NOT NULL,
    phone     TEXT NOT NULL,
    confirmed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
    actor_id     INTEGER NOT NULL,
    role         TEXT NOT NULL CHECK (role IN ('buyer', 'admin')),
    session_type TEXT NOT NULL,
    payload      TEXT NOT NULL DEFAULT '{}',
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    expires_at   DATETIME,
    PRIMARY KEY (actor_id, role)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
