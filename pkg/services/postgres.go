// pkg/services/postgres.go
package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed service directory.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates the directory and claim tables if they do not already exist.
func (p *pgStore) EnsureSchema(ctx context.Context) error {
	_, err := p.dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS installed_services (
  id SERIAL PRIMARY KEY,
  name VARCHAR(50) NOT NULL,
  slug VARCHAR(50) UNIQUE NOT NULL,
  url VARCHAR(255),
  icon VARCHAR(50),
  description TEXT,
  login_path VARCHAR(255),
  status VARCHAR(20) DEFAULT 'active',
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
ALTER TABLE installed_services ADD COLUMN IF NOT EXISTS login_path VARCHAR(255);
CREATE TABLE IF NOT EXISTS installation_claim (
  id SMALLINT PRIMARY KEY CHECK (id = 1),
  claimed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	return err
}

// Upsert writes the descriptor keyed by slug. Empty name/icon/description and a
// nil login path keep the stored values.
func (p *pgStore) Upsert(ctx context.Context, d Descriptor) error {
	if d.Slug == "" {
		return ErrInvalidSlug
	}
	_, err := p.dbPool.Exec(ctx, `
INSERT INTO installed_services (name, slug, url, icon, description, login_path)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (slug) DO UPDATE SET
  url = EXCLUDED.url,
  login_path = COALESCE(EXCLUDED.login_path, installed_services.login_path),
  name = COALESCE(NULLIF(EXCLUDED.name, ''), installed_services.name),
  icon = COALESCE(NULLIF(EXCLUDED.icon, ''), installed_services.icon),
  description = COALESCE(NULLIF(EXCLUDED.description, ''), installed_services.description),
  status = 'active'`,
		d.Name, d.Slug, d.URL, d.Icon, d.Description, d.LoginPath)
	return err
}

func (p *pgStore) List(ctx context.Context) ([]Descriptor, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT id, name, slug, COALESCE(url,''), COALESCE(icon,''), COALESCE(description,''), login_path, COALESCE(status,'active'), created_at
FROM installed_services ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Descriptor{}
	for rows.Next() {
		var d Descriptor
		if err := rows.Scan(&d.ID, &d.Name, &d.Slug, &d.URL, &d.Icon, &d.Description, &d.LoginPath, &d.Status, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *pgStore) IsInstalled(ctx context.Context) (bool, error) {
	var exists bool
	if err := p.dbPool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM installed_services)`).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// execer is the part of the pool the claim needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pgClaimer holds a single-row claim; a claim older than staleAfter is taken over
// so a crashed run cannot block installation forever.
type pgClaimer struct {
	dbPool     execer
	staleAfter time.Duration
}

// NewPostgresClaimer expects the installation_claim table from EnsureSchema.
func NewPostgresClaimer(dbPool *pgxpool.Pool, staleAfter time.Duration) Claimer {
	return &pgClaimer{dbPool: dbPool, staleAfter: staleAfter}
}

func (c *pgClaimer) Claim(ctx context.Context) (bool, error) {
	tag, err := c.dbPool.Exec(ctx, `
INSERT INTO installation_claim (id, claimed_at) VALUES (1, NOW())
ON CONFLICT (id) DO UPDATE SET claimed_at = NOW()
WHERE installation_claim.claimed_at < NOW() - make_interval(secs => $1)`, c.staleAfter.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (c *pgClaimer) Release(ctx context.Context) error {
	_, err := c.dbPool.Exec(ctx, `DELETE FROM installation_claim WHERE id = 1`)
	return err
}
