package engineinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

type PostgresAPIKeyRepository struct {
	db *sqlx.DB
}

var _ engine.APIKeyRepository = (*PostgresAPIKeyRepository)(nil)

func NewPostgresAPIKeyRepository(db *sqlx.DB) *PostgresAPIKeyRepository {
	return &PostgresAPIKeyRepository{db: db}
}

type dbAPIKey struct {
	ID         string     `db:"id"`
	BrandID    int64      `db:"brand_id"`
	Name       string     `db:"name"`
	KeyHash    string     `db:"key_hash"`
	Active     bool       `db:"active"`
	CreatedAt  time.Time  `db:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
}

func toDomainAPIKey(dbKey *dbAPIKey) *engine.APIKey {
	return &engine.APIKey{
		ID:         kernel.APIKeyID(dbKey.ID),
		BrandID:    dbKey.BrandID,
		Name:       dbKey.Name,
		KeyHash:    dbKey.KeyHash,
		Active:     dbKey.Active,
		CreatedAt:  dbKey.CreatedAt,
		LastUsedAt: dbKey.LastUsedAt,
	}
}

func (r *PostgresAPIKeyRepository) Save(ctx context.Context, key engine.APIKey) error {
	dbKey := dbAPIKey{
		ID:         key.ID.String(),
		BrandID:    key.BrandID,
		Name:       key.Name,
		KeyHash:    key.KeyHash,
		Active:     key.Active,
		CreatedAt:  key.CreatedAt,
		LastUsedAt: key.LastUsedAt,
	}

	query := `
		INSERT INTO api_keys (
			id, brand_id, name, key_hash, active, created_at, last_used_at
		) VALUES (
			:id, :brand_id, :name, :key_hash, :active, :created_at, :last_used_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active`

	if _, err := r.db.NamedExecContext(ctx, query, dbKey); err != nil {
		return errx.Wrap(err, "failed to save api key", errx.TypeInternal).
			WithDetail("api_key_id", key.ID)
	}

	return nil
}

func (r *PostgresAPIKeyRepository) FindByID(ctx context.Context, id kernel.APIKeyID) (*engine.APIKey, error) {
	query := `
		SELECT id, brand_id, name, key_hash, active, created_at, last_used_at
		FROM api_keys
		WHERE id = $1`

	var dbKey dbAPIKey
	err := r.db.GetContext(ctx, &dbKey, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrAPIKeyNotFound().WithDetail("api_key_id", string(id))
		}
		return nil, errx.Wrap(err, "failed to find api key by id", errx.TypeInternal).
			WithDetail("api_key_id", string(id))
	}

	return toDomainAPIKey(&dbKey), nil
}

func (r *PostgresAPIKeyRepository) FindActiveByBrand(ctx context.Context, brandID int64) ([]*engine.APIKey, error) {
	query := `
		SELECT id, brand_id, name, key_hash, active, created_at, last_used_at
		FROM api_keys
		WHERE brand_id = $1 AND active = TRUE
		ORDER BY created_at DESC`

	var dbKeys []dbAPIKey
	err := r.db.SelectContext(ctx, &dbKeys, query, brandID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to find active api keys", errx.TypeInternal)
	}

	keys := make([]*engine.APIKey, 0, len(dbKeys))
	for i := range dbKeys {
		keys = append(keys, toDomainAPIKey(&dbKeys[i]))
	}

	return keys, nil
}

func (r *PostgresAPIKeyRepository) Deactivate(ctx context.Context, id kernel.APIKeyID) error {
	query := `UPDATE api_keys SET active = FALSE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to deactivate api key", errx.TypeInternal).
			WithDetail("api_key_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrAPIKeyNotFound().WithDetail("api_key_id", string(id))
	}

	return nil
}

// TouchLastUsed es best-effort: se llama tras cada intake autenticado y un
// error aquí no debe tumbar el webhook.
func (r *PostgresAPIKeyRepository) TouchLastUsed(ctx context.Context, id kernel.APIKeyID) error {
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id.String()); err != nil {
		return errx.Wrap(err, "failed to touch api key last used", errx.TypeInternal).
			WithDetail("api_key_id", string(id))
	}

	return nil
}
