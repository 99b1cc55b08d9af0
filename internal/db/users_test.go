package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pickupper/backend/internal/config"
	"github.com/pickupper/backend/internal/model"
)

func TestCreateUser_DuplicateUsername(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err := store.CreateUser(context.Background(), NewUser{Username: "root", Password: "digest", RoleID: "role-2"}, time.Now())
	if model.CodeOf(err) != model.CodeUniqueViolation {
		t.Fatalf("CreateUser() error = %v, want UniqueViolation", err)
	}
	if got := model.PublicError(err).Message; got != "Username already exists" {
		t.Fatalf("message = %q", got)
	}
}

func TestGetCredentialsByUsername(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, password")).
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}).AddRow("user-1", "root", "$argon2id$..."))

	creds, err := store.GetCredentialsByUsername(context.Background(), "root")
	if err != nil {
		t.Fatalf("GetCredentialsByUsername() error = %v", err)
	}
	if creds.ID != "user-1" || creds.Password != "$argon2id$..." {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestGetCredentialsByUsername_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM users").WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}))

	_, err := store.GetCredentialsByUsername(context.Background(), "ghost")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetCredentialsByUsername() error = %v, want NotFound", err)
	}
}

func TestGetUserByID(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	columns := []string{"id", "username", "name", "surname", "date_created", "id", "permission_level", "role", "description"}
	mock.ExpectQuery("JOIN user_roles r ON r.id = u.fk_user_role").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("user-1", "root", "", "", created, "role-2", int64(2), "Admin", nil))

	user, err := store.GetUserByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Role.PermissionLevel != model.PermissionAdmin || user.Role.Description != nil {
		t.Fatalf("unexpected role: %+v", user.Role)
	}
	if !user.DateCreated.Equal(created) {
		t.Fatalf("DateCreated = %v, want %v", user.DateCreated, created)
	}
}

func TestUpdatePassword_UnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE users SET password").
		WithArgs("user-9", "digest").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdatePassword(context.Background(), "user-9", "digest"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UpdatePassword() error = %v, want NotFound", err)
	}
}

func TestSetUserRole_UnknownRole(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE users SET fk_user_role").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "users_fk_user_role_fkey"})

	err := store.SetUserRole(context.Background(), "user-1", "role-x")
	if model.CodeOf(err) != model.CodeForeignKeyError {
		t.Fatalf("SetUserRole() error = %v, want ForeignKeyError", err)
	}
}

func TestListRoles(t *testing.T) {
	store, mock := newMockStore(t)
	desc := "Full access"
	mock.ExpectQuery("ORDER BY permission_level").
		WillReturnRows(sqlmock.NewRows([]string{"id", "permission_level", "role", "description"}).
			AddRow("r0", int64(0), "User", nil).
			AddRow("r2", int64(2), "Admin", desc))

	roles, err := store.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("ListRoles() error = %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("len(roles) = %d, want 2", len(roles))
	}
	if roles[1].Description == nil || *roles[1].Description != desc {
		t.Fatalf("unexpected description: %v", roles[1].Description)
	}
}

func TestGetRoleByLevel_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM user_roles").
		WithArgs(int16(model.PermissionSupervisor)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "permission_level", "role", "description"}))

	if _, err := store.GetRoleByLevel(context.Background(), model.PermissionSupervisor); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetRoleByLevel() error = %v, want NotFound", err)
	}
}

func TestEnsureAuthSchema(t *testing.T) {
	store, mock := newMockStore(t)
	for _, table := range []string{"user_roles", "users", "tokens"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS tokens_fk_user_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS tokens_date_end_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, r := range defaultRoles {
		mock.ExpectExec("INSERT INTO user_roles").
			WithArgs(sqlmock.AnyArg(), int16(r.level), r.role, r.description).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	if err := store.EnsureAuthSchema(context.Background()); err != nil {
		t.Fatalf("EnsureAuthSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBuildPostgresURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.PostgresConfig
		want    string
		wantErr bool
	}{
		{
			name: "database url wins",
			cfg:  config.PostgresConfig{DatabaseURL: "postgres://a@b/c", User: "x", Database: "y"},
			want: "postgres://a@b/c",
		},
		{
			name: "defaults",
			cfg:  config.PostgresConfig{User: "pickup", Database: "pickup"},
			want: "postgres://pickup@localhost:5432/pickup?sslmode=disable",
		},
		{
			name: "password and ssl",
			cfg:  config.PostgresConfig{User: "pickup", Password: "p@ss", Database: "db", Host: "pg", Port: "6432", SSLMode: "require"},
			want: "postgres://pickup:p%40ss@pg:6432/db?sslmode=require",
		},
		{
			name:    "missing user",
			cfg:     config.PostgresConfig{Database: "db"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPostgresURL(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildPostgresURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("buildPostgresURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
