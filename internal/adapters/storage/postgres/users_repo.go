package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"vet-appointments/internal/domain/clinic"
)

const userColumns = `
	u.id, u.external_id, u.email, u.name, u.phone, u.address,
	r.id, r.name,
	u.created_at, u.updated_at`

const userFrom = `FROM users u JOIN roles r ON r.id = u.role_id`

func scanUser(row pgx.Row) (clinic.User, error) {
	var (
		u    clinic.User
		role string
	)
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Phone, &u.Address,
		&u.Role.ID, &role,
		&u.CreatedAt, &u.UpdatedAt,
	)
	u.Role.Name = clinic.RoleName(role)
	return u, err
}

func (t *tx) getUser(ctx context.Context, what, where string, arg any) (clinic.User, error) {
	row := t.q.QueryRow(ctx, `SELECT `+userColumns+` `+userFrom+` WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinic.User{}, clinic.NotFound("user %s not found", what)
		}
		return clinic.User{}, mapError(err)
	}
	return u, nil
}

func (t *tx) GetUser(ctx context.Context, id string) (clinic.User, error) {
	id = strings.TrimSpace(id)
	return t.getUser(ctx, quote(id), `u.id = $1`, id)
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (clinic.User, error) {
	email = strings.TrimSpace(email)
	return t.getUser(ctx, "with email "+quote(email), `lower(u.email) = lower($1)`, email)
}

func (t *tx) GetUserByExternalID(ctx context.Context, externalID string) (clinic.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return clinic.User{}, clinic.NotFound("user with empty external id not found")
	}
	return t.getUser(ctx, "with external id "+quote(externalID), `u.external_id = $1`, externalID)
}

func (t *tx) listUsers(ctx context.Context, tail string, args ...any) ([]clinic.User, error) {
	rows, err := t.q.Query(ctx, `SELECT `+userColumns+` `+userFrom+` `+tail, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]clinic.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, u)
	}
	return out, mapError(rows.Err())
}

func (t *tx) ListUsers(ctx context.Context) ([]clinic.User, error) {
	return t.listUsers(ctx, `ORDER BY u.email ASC, u.id ASC`)
}

func (t *tx) GetUsersByRole(ctx context.Context, role clinic.RoleName) ([]clinic.User, error) {
	return t.listUsers(ctx, `WHERE r.name = $1 ORDER BY u.id ASC`, string(role))
}

func (t *tx) SaveUser(ctx context.Context, u clinic.User) error {
	_, err := t.exec(ctx, `
		INSERT INTO users (
			id, external_id, email, name, phone, address, role_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			role_id = EXCLUDED.role_id,
			updated_at = EXCLUDED.updated_at
	`,
		u.ID, u.ExternalID, u.Email, u.Name, u.Phone, u.Address,
		u.Role.ID, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

// DeleteUser: clients/veterinarians caen por ON DELETE CASCADE, y el borrado
// del veterinario deja NULL en appointments.veterinarian_id.
func (t *tx) DeleteUser(ctx context.Context, id string) error {
	return t.deleteOne(ctx, "user", `DELETE FROM users WHERE id = $1`, id)
}

func (t *tx) FindRoleByName(ctx context.Context, name string) (clinic.Role, error) {
	name = strings.TrimSpace(name)
	var (
		r    clinic.Role
		role string
	)
	err := t.q.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&r.ID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinic.Role{}, clinic.NotFound("role %q not found", name)
		}
		return clinic.Role{}, mapError(err)
	}
	r.Name = clinic.RoleName(role)
	return r, nil
}

func (t *tx) ListRoles(ctx context.Context) ([]clinic.Role, error) {
	rows, err := t.q.Query(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]clinic.Role, 0, len(clinic.KnownRoles))
	for rows.Next() {
		var (
			r    clinic.Role
			name string
		)
		if err := rows.Scan(&r.ID, &name); err != nil {
			return nil, mapError(err)
		}
		r.Name = clinic.RoleName(name)
		out = append(out, r)
	}
	return out, mapError(rows.Err())
}

// -------------------------
// Profiles
// -------------------------

func (t *tx) GetClient(ctx context.Context, userID string) (clinic.Client, error) {
	var c clinic.Client
	err := t.q.QueryRow(ctx, `SELECT user_id FROM clients WHERE user_id = $1`, userID).Scan(&c.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinic.Client{}, clinic.NotFound("client %q not found", userID)
		}
		return clinic.Client{}, mapError(err)
	}
	return c, nil
}

func (t *tx) SaveClient(ctx context.Context, c clinic.Client) error {
	_, err := t.exec(ctx, `INSERT INTO clients (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, c.UserID)
	return err
}

func (t *tx) DeleteClient(ctx context.Context, userID string) error {
	return t.deleteOne(ctx, "client", `DELETE FROM clients WHERE user_id = $1`, userID)
}

func (t *tx) GetVeterinarian(ctx context.Context, userID string) (clinic.Veterinarian, error) {
	var v clinic.Veterinarian
	err := t.q.QueryRow(ctx, `SELECT user_id FROM veterinarians WHERE user_id = $1`, userID).Scan(&v.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinic.Veterinarian{}, clinic.NotFound("veterinarian %q not found", userID)
		}
		return clinic.Veterinarian{}, mapError(err)
	}
	return v, nil
}

func (t *tx) SaveVeterinarian(ctx context.Context, v clinic.Veterinarian) error {
	_, err := t.exec(ctx, `INSERT INTO veterinarians (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, v.UserID)
	return err
}

func (t *tx) DeleteVeterinarian(ctx context.Context, userID string) error {
	return t.deleteOne(ctx, "veterinarian", `DELETE FROM veterinarians WHERE user_id = $1`, userID)
}

func (t *tx) GetVeterinariansByRole(ctx context.Context) ([]clinic.Veterinarian, error) {
	rows, err := t.q.Query(ctx, `
		SELECT v.user_id
		FROM veterinarians v
		JOIN users u ON u.id = v.user_id
		JOIN roles r ON r.id = u.role_id
		WHERE r.name = $1
		ORDER BY v.user_id ASC
	`, string(clinic.RoleVeterinarian))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]clinic.Veterinarian, 0)
	for rows.Next() {
		var v clinic.Veterinarian
		if err := rows.Scan(&v.UserID); err != nil {
			return nil, mapError(err)
		}
		out = append(out, v)
	}
	return out, mapError(rows.Err())
}

func (t *tx) deleteOne(ctx context.Context, what, sql, id string) error {
	n, err := t.exec(ctx, sql, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return clinic.NotFound("%s %q not found", what, id)
	}
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}
