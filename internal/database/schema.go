package database

import (
	"fmt"
	"log"

	"github.com/gocql/gocql"
)

// Tables du keyspace utilisateurs.
var usersSchema = []string{
	`CREATE TABLE IF NOT EXISTS addresses (
		user_id text,
		address_id uuid,
		full_name text,
		phone text,
		flat text,
		area text,
		landmark text,
		pincode text,
		city text,
		state text,
		is_default boolean,
		created_at timestamp,
		updated_at timestamp,
		PRIMARY KEY (user_id, address_id)
	)`,
}

// Tables du keyspace commandes.
var ordersSchema = []string{
	`CREATE TABLE IF NOT EXISTS coupons (
		code text PRIMARY KEY,
		id uuid,
		description text,
		type text,
		value decimal,
		min_amount decimal,
		max_amount decimal,
		max_uses int,
		used_count int,
		max_uses_per_user int,
		visibility text,
		expires_at timestamp,
		starts_at timestamp,
		is_active boolean,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS coupon_usage (
		code text,
		user_id text,
		order_id uuid,
		used_at timestamp,
		PRIMARY KEY ((code, user_id), order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_intents (
		gateway_order_id text PRIMARY KEY,
		user_id text,
		provider text,
		amount decimal,
		currency text,
		created_at timestamp,
		coupon_code text,
		coupon_discount decimal,
		items_total decimal
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_id uuid PRIMARY KEY,
		business_order_id text,
		user_id text,
		products text,
		address text,
		payment_method text,
		items_total decimal,
		discount decimal,
		tax decimal,
		shipping decimal,
		total decimal,
		coupon_code text,
		status text,
		gateway_order_id text,
		payment_id text,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS orders_by_gateway_order (
		gateway_order_id text PRIMARY KEY,
		order_id uuid
	)`,
}

// ApplySchema crée les tables manquantes du keyspace (idempotent).
func ApplySchema(session *gocql.Session, keyspace string) error {
	var stmts []string
	switch {
	case Scylla != nil && keyspace == Scylla.users:
		stmts = usersSchema
	case Scylla != nil && keyspace == Scylla.orders:
		stmts = ordersSchema
	default:
		return nil
	}

	for _, stmt := range stmts {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("schéma %s: %w", keyspace, err)
		}
	}
	log.Printf("✅ Schéma ScyllaDB appliqué pour '%s' (%d tables)", keyspace, len(stmts))
	return nil
}
