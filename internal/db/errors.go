package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pickupper/backend/internal/model"
)

// SQLSTATE codes for integrity constraint violations.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// constraintFields names the client-facing field behind each schema constraint.
// Keep in sync with the CONSTRAINT clauses in EnsureAuthSchema.
var constraintFields = map[string]string{
	"user_roles_permission_level_key": "PermissionLevel",
	"user_roles_role_key":             "Role",
	"users_username_key":              "Username",
	"users_fk_user_role_fkey":         "UserRole",
	"tokens_type_token_key":           "Token",
	"tokens_type_check":               "Type",
	"tokens_fk_user_fkey":             "User",
}

// classify turns a driver error into a model.Error. Integrity violations keep their kind;
// everything else is internal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var already *model.Error
	if errors.As(err, &already) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return model.Internal(err)
	}

	field, ok := constraintFields[pgErr.ConstraintName]
	if !ok {
		field = "Value"
	}
	switch pgErr.Code {
	case pgForeignKeyViolation:
		return model.NewError(model.CodeForeignKeyError, fmt.Sprintf("%s does not exist", field), err)
	case pgUniqueViolation:
		return model.NewError(model.CodeUniqueViolation, fmt.Sprintf("%s already exists", field), err)
	case pgCheckViolation:
		return model.NewError(model.CodeCheckViolation, fmt.Sprintf("%s is out of range", field), err)
	default:
		return model.Internal(err)
	}
}

func notFound(what string) error {
	return model.NewError(model.CodeNotFound, what+" not found", nil)
}
