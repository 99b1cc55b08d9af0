package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pickupper/backend/internal/model"
)

// NewUser is the row written by CreateUser. Password is already a digest.
type NewUser struct {
	Username string
	Name     string
	Surname  string
	Password string
	RoleID   string
}

func (db *Postgres) CreateUser(ctx context.Context, in NewUser, now time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, name, surname, password, date_created, fk_user_role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, in.Username, in.Name, in.Surname, in.Password, now, in.RoleID)
	if err != nil {
		return "", classify(err)
	}
	return id, nil
}

func (db *Postgres) GetCredentialsByUsername(ctx context.Context, username string) (*model.UserCredentials, error) {
	var creds model.UserCredentials
	err := db.DB.QueryRowContext(ctx, `
		SELECT id, username, password
		FROM users
		WHERE username = $1
	`, username).Scan(&creds.ID, &creds.Username, &creds.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user")
		}
		return nil, classify(err)
	}
	return &creds, nil
}

func (db *Postgres) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	var (
		user  model.User
		level int16
	)
	err := db.DB.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.name, u.surname, u.date_created,
		       r.id, r.permission_level, r.role, r.description
		FROM users u
		JOIN user_roles r ON r.id = u.fk_user_role
		WHERE u.id = $1
	`, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Surname,
		&user.DateCreated,
		&user.Role.ID,
		&level,
		&user.Role.Role,
		&user.Role.Description,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user")
		}
		return nil, classify(err)
	}
	user.Role.PermissionLevel = model.ParsePermissionLevel(level)
	return &user, nil
}

func (db *Postgres) UpdatePassword(ctx context.Context, userID, digest string) error {
	res, err := db.DB.ExecContext(ctx, `UPDATE users SET password = $2 WHERE id = $1`, userID, digest)
	return expectOneRow(res, err, "user")
}

func (db *Postgres) SetUserRole(ctx context.Context, userID, roleID string) error {
	res, err := db.DB.ExecContext(ctx, `UPDATE users SET fk_user_role = $2 WHERE id = $1`, userID, roleID)
	return expectOneRow(res, err, "user")
}

func (db *Postgres) GetRoleByLevel(ctx context.Context, level model.PermissionLevel) (*model.UserRole, error) {
	var (
		role model.UserRole
		raw  int16
	)
	err := db.DB.QueryRowContext(ctx, `
		SELECT id, permission_level, role, description
		FROM user_roles
		WHERE permission_level = $1
	`, int16(level)).Scan(&role.ID, &raw, &role.Role, &role.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("role")
		}
		return nil, classify(err)
	}
	role.PermissionLevel = model.ParsePermissionLevel(raw)
	return &role, nil
}

func (db *Postgres) ListRoles(ctx context.Context) ([]model.UserRole, error) {
	rows, err := db.DB.QueryContext(ctx, `
		SELECT id, permission_level, role, description
		FROM user_roles
		ORDER BY permission_level
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	roles := []model.UserRole{}
	for rows.Next() {
		var (
			role model.UserRole
			raw  int16
		)
		if err := rows.Scan(&role.ID, &raw, &role.Role, &role.Description); err != nil {
			return nil, classify(err)
		}
		role.PermissionLevel = model.ParsePermissionLevel(raw)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return roles, nil
}

func expectOneRow(res sql.Result, err error, what string) error {
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return notFound(what)
	}
	return nil
}
