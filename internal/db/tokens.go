package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pickupper/backend/internal/model"
)

// errDuplicateToken means two live rows share a digest, which the unique index should prevent.
var errDuplicateToken = errors.New("more than one live token matches digest")

// InsertToken persists a token digest valid for [now, now+ttl).
func (db *Postgres) InsertToken(ctx context.Context, kind model.TokenKind, digest, ownerID, deviceInfo string, ttl time.Duration, now time.Time) (*model.Token, error) {
	tok := model.Token{
		ID:         uuid.NewString(),
		Digest:     digest,
		Kind:       kind,
		DeviceInfo: deviceInfo,
		DateStart:  now,
		DateEnd:    now.Add(ttl),
		OwnerID:    ownerID,
	}
	_, err := db.DB.ExecContext(ctx, `
		INSERT INTO tokens (id, token, type, device_info, date_start, date_end, fk_user)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tok.ID, tok.Digest, int16(tok.Kind), tok.DeviceInfo, tok.DateStart, tok.DateEnd, tok.OwnerID)
	if err != nil {
		return nil, classify(err)
	}
	return &tok, nil
}

func (db *Postgres) InsertRefresh(ctx context.Context, digest, ownerID, deviceInfo string, ttl time.Duration, now time.Time) (*model.Token, error) {
	return db.InsertToken(ctx, model.TokenRefresh, digest, ownerID, deviceInfo, ttl, now)
}

func (db *Postgres) InsertAccess(ctx context.Context, digest, ownerID, deviceInfo string, now time.Time) (*model.Token, error) {
	return db.InsertToken(ctx, model.TokenAccess, digest, ownerID, deviceInfo, model.AccessTokenTTL, now)
}

// Lookup returns the live token of kind with the given digest.
// A token whose date_end equals now is already dead.
func (db *Postgres) Lookup(ctx context.Context, kind model.TokenKind, digest string, now time.Time) (*model.Token, error) {
	rows, err := db.DB.QueryContext(ctx, `
		SELECT id, token, type, device_info, date_start, date_end, fk_user
		FROM tokens
		WHERE type = $1 AND token = $2 AND date_end > $3
		LIMIT 2
	`, int16(kind), digest, now)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var found []model.Token
	for rows.Next() {
		var (
			tok     model.Token
			rawKind int16
		)
		if err := rows.Scan(&tok.ID, &tok.Digest, &rawKind, &tok.DeviceInfo, &tok.DateStart, &tok.DateEnd, &tok.OwnerID); err != nil {
			return nil, classify(err)
		}
		tok.Kind = model.TokenKind(rawKind)
		found = append(found, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	switch len(found) {
	case 0:
		return nil, model.ErrUnauthorized
	case 1:
		return &found[0], nil
	default:
		return nil, model.Internal(errDuplicateToken)
	}
}

// ResolvePermission joins a live access token to its owner's current role.
// The tier is read at lookup time so role changes apply to already issued tokens.
func (db *Postgres) ResolvePermission(ctx context.Context, digest string, now time.Time) (*model.Principal, error) {
	rows, err := db.DB.QueryContext(ctx, `
		SELECT u.id, u.username, r.permission_level, t.device_info
		FROM tokens t
		JOIN users u ON u.id = t.fk_user
		JOIN user_roles r ON r.id = u.fk_user_role
		WHERE t.type = $1 AND t.token = $2 AND t.date_end > $3
		LIMIT 2
	`, int16(model.TokenAccess), digest, now)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var found []model.Principal
	for rows.Next() {
		var (
			p     model.Principal
			level int16
		)
		if err := rows.Scan(&p.UserID, &p.Username, &level, &p.DeviceInfo); err != nil {
			return nil, classify(err)
		}
		p.Tier = model.ParsePermissionLevel(level)
		p.TierResolved = true
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	switch len(found) {
	case 0:
		return nil, model.ErrUnauthorized
	case 1:
		return &found[0], nil
	default:
		return nil, model.Internal(errDuplicateToken)
	}
}

// DeleteExpiredTokens removes tokens dead at now and returns how many were removed.
func (db *Postgres) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.DB.ExecContext(ctx, `DELETE FROM tokens WHERE date_end <= $1`, now)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}
