package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ogani-checkout/internal/seed"
)

const (
	upsertCategorySQL = `INSERT INTO categories (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock, category_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			category_id = EXCLUDED.category_id`

	upsertUserSQL = `INSERT INTO users (id, username, email, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			role = EXCLUDED.role`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id, scopes, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			user_id = EXCLUDED.user_id,
			scopes = EXCLUDED.scopes,
			active = TRUE`
)

// Seeded tables with explicit ids; their sequences are moved past the
// highest id afterwards.
var serialTables = []string{"categories", "products", "users"}

// Seed upserts the dataset in one transaction. API keys are stored hashed
// under pepper.
func Seed(ctx context.Context, pool *pgxpool.Pool, d *seed.Dataset, pepper []byte) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, c := range d.Categories {
			b.Queue(upsertCategorySQL, c.ID, c.Name)
		}
		for _, p := range d.Products {
			b.Queue(upsertProductSQL, p.ID, p.Name, p.Price, p.Stock, p.CategoryID)
		}
		for _, u := range d.Users {
			email := u.Email
			if email == "" {
				email = u.Username + "@ogani.local"
			}
			b.Queue(upsertUserSQL, u.ID, u.Username, email, string(u.Role))
		}
		for _, k := range d.KeyInfos(pepper) {
			scopes := k.Scopes
			if scopes == nil {
				scopes = []string{}
			}
			b.Queue(upsertAPIKeySQL, k.ID, k.KeyHash, k.Name, k.UserID, scopes)
		}
		for _, table := range serialTables {
			b.Queue(`SELECT setval(pg_get_serial_sequence('` + table + `', 'id'),
				GREATEST((SELECT MAX(id) FROM ` + table + `), 1))`)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return errors.Wrap(err, "seed batch")
		}
		return nil
	})
}
