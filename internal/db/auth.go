package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/pickupper/backend/internal/model"
)

var defaultRoles = []struct {
	level       model.PermissionLevel
	role        string
	description string
}{
	{model.PermissionUser, "User", "Regular account"},
	{model.PermissionSupervisor, "Supervisor", "Manages pickups of regular accounts"},
	{model.PermissionAdmin, "Admin", "Full access"},
}

// EnsureAuthSchema creates the identity and token tables and seeds one role per tier.
// It is idempotent.
func (db *Postgres) EnsureAuthSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS user_roles (
			id UUID PRIMARY KEY,
			permission_level SMALLINT NOT NULL,
			role TEXT NOT NULL,
			description TEXT,
			CONSTRAINT user_roles_permission_level_key UNIQUE (permission_level),
			CONSTRAINT user_roles_role_key UNIQUE (role)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			surname TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL,
			date_created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			fk_user_role UUID NOT NULL,
			CONSTRAINT users_username_key UNIQUE (username),
			CONSTRAINT users_fk_user_role_fkey FOREIGN KEY (fk_user_role) REFERENCES user_roles(id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS tokens (
			id UUID PRIMARY KEY,
			token TEXT NOT NULL,
			type SMALLINT NOT NULL,
			device_info TEXT NOT NULL DEFAULT '',
			date_start TIMESTAMPTZ NOT NULL,
			date_end TIMESTAMPTZ NOT NULL,
			date_created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			fk_user UUID NOT NULL,
			CONSTRAINT tokens_type_token_key UNIQUE (type, token),
			CONSTRAINT tokens_type_check CHECK (type IN (0, 1)),
			CONSTRAINT tokens_fk_user_fkey FOREIGN KEY (fk_user) REFERENCES users(id) ON DELETE CASCADE
		)
		`,
		`CREATE INDEX IF NOT EXISTS tokens_fk_user_idx ON tokens(fk_user)`,
		`CREATE INDEX IF NOT EXISTS tokens_date_end_idx ON tokens(date_end)`,
	}

	for _, query := range queries {
		if _, err := db.DB.ExecContext(ctx, query); err != nil {
			return classify(err)
		}
	}

	for _, r := range defaultRoles {
		_, err := db.DB.ExecContext(ctx, `
			INSERT INTO user_roles (id, permission_level, role, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, uuid.NewString(), int16(r.level), r.role, r.description)
		if err != nil {
			return classify(err)
		}
	}
	return nil
}
