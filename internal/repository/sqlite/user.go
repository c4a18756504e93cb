package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/entity-auth/internal/apperror"
	"github.com/sakif/entity-auth/internal/entity"
	"github.com/sakif/entity-auth/internal/model"
	"github.com/sakif/entity-auth/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, name, email, password, reset_password_token, reset_password_exp, created_at, updated_at`

// Create runs the before_insert hooks and inserts the user.
//
// The hooks run on the caller's struct, so after Create returns the user
// holds exactly what was written (e.g. the password hash, not the plaintext).
// A duplicate email returns apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	if err := db.hooks.Run(ctx, entity.BeforeInsert, user); err != nil {
		return err
	}

	user.ID = xid.New().String()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.Password,
		user.ResetPasswordToken,
		user.ResetPasswordExp,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		user.ID = ""
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return apperror.Persistence("sqlite: inserting user", err)
	}

	return nil
}

// Update runs the before_update hooks on the whole user and rewrites every
// column. Prefer Patch when only a few columns change.
//
// An empty Password means "not touched": the stored hash is kept.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		return apperror.ValidationFailed(model.ColID, "sqlite: cannot update a user without an id")
	}
	if err := db.hooks.Run(ctx, entity.BeforeUpdate, user); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, email = ?, password = COALESCE(NULLIF(?, ''), password), reset_password_token = ?, reset_password_exp = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.Password,
		user.ResetPasswordToken,
		user.ResetPasswordExp,
		now,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return apperror.Persistence(fmt.Sprintf("sqlite: updating user %s", user.ID), err)
	}
	if err := expectOneRow(res, user.ID); err != nil {
		return err
	}

	user.UpdatedAt = now
	return nil
}

// Patch writes only the columns in changes to the row identified by rec's id
// and then copies them onto rec.
//
// The before_update hooks see the change set, not the full record. A patch
// that doesn't touch the password never re-runs the password hook; a patch
// that sets a new plaintext password gets it hashed before the UPDATE.
func (db *DB) Patch(ctx context.Context, rec entity.Record, changes entity.Fields) error {
	id := rec.Field(model.ColID)
	if id == "" {
		return apperror.ValidationFailed(model.ColID, "sqlite: cannot patch a user without an id")
	}
	if len(changes) == 0 {
		return nil
	}

	if err := db.hooks.Run(ctx, entity.BeforeUpdate, changes); err != nil {
		return err
	}

	names := changes.Names()
	for _, name := range names {
		if name == model.ColID || !model.Writable(name) {
			return apperror.ValidationFailed(name, fmt.Sprintf("sqlite: column %q cannot be patched", name))
		}
	}

	// Column names come from the whitelist above, never from input, so
	// building the SET clause with Sprintf is safe.
	now := time.Now().UTC()
	sets := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		sets = append(sets, fmt.Sprintf("%s = ?", name))
		args = append(args, changes[name])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id)

	res, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE id = ?`, strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", changes.Field(model.ColEmail))
		}
		return apperror.Persistence(fmt.Sprintf("sqlite: patching user %s", id), err)
	}
	if err := expectOneRow(res, id); err != nil {
		return err
	}

	if err := changes.Apply(rec); err != nil {
		return err
	}
	if u, ok := rec.(*model.User); ok {
		u.UpdatedAt = now
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, apperror.Persistence(fmt.Sprintf("sqlite: getting user %s", id), err)
	}
	return u, nil
}

// GetByEmail looks a user up by email, case-insensitively.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, apperror.Persistence("sqlite: getting user by email", err)
	}
	return u, nil
}

// GetByResetToken finds the user holding a pending reset token. It does not
// check the expiry; that is the reset capability's job.
func (db *DB) GetByResetToken(ctx context.Context, token string) (*model.User, error) {
	// Every user without a pending reset has token "", which must never match.
	if token == "" {
		return nil, apperror.NotFound("user", "reset token")
	}
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_password_token = ?`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", "reset token")
		}
		return nil, apperror.Persistence("sqlite: getting user by reset token", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Password,
		&u.ResetPasswordToken,
		&u.ResetPasswordExp,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Persistence("sqlite: reading rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// isUniqueViolation matches SQLite's "UNIQUE constraint failed: users.email".
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
