package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"vet-appointments/internal/domain/clinic"
)

const petColumns = `id, client_id, name, species, breed, birth_date, created_at, updated_at`

func scanPet(row pgx.Row) (clinic.Pet, error) {
	var (
		p  clinic.Pet
		bd *time.Time
	)
	if err := row.Scan(&p.ID, &p.ClientID, &p.Name, &p.Species, &p.Breed, &bd, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return clinic.Pet{}, err
	}
	if bd != nil {
		p.BirthDate = *bd
	}
	return p, nil
}

func (t *tx) GetPet(ctx context.Context, id string) (clinic.Pet, error) {
	id = strings.TrimSpace(id)
	p, err := scanPet(t.q.QueryRow(ctx, `SELECT `+petColumns+` FROM pets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinic.Pet{}, clinic.NotFound("pet %q not found", id)
		}
		return clinic.Pet{}, mapError(err)
	}
	return p, nil
}

func (t *tx) ListPets(ctx context.Context, filter clinic.PetFilter) ([]clinic.Pet, error) {
	sql := `SELECT ` + petColumns + ` FROM pets`
	var args []any
	if filter.ClientID != "" {
		sql += ` WHERE client_id = $1`
		args = append(args, filter.ClientID)
	}
	sql += ` ORDER BY name ASC, id ASC`

	rows, err := t.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]clinic.Pet, 0)
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, p)
	}
	return out, mapError(rows.Err())
}

func (t *tx) SavePet(ctx context.Context, p clinic.Pet) error {
	_, err := t.exec(ctx, `
		INSERT INTO pets (`+petColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			name = EXCLUDED.name,
			species = EXCLUDED.species,
			breed = EXCLUDED.breed,
			birth_date = EXCLUDED.birth_date,
			updated_at = EXCLUDED.updated_at
	`,
		p.ID, p.ClientID, p.Name, p.Species, p.Breed,
		nullDate(p.BirthDate), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// DeletePet: los turnos caen por ON DELETE CASCADE.
func (t *tx) DeletePet(ctx context.Context, id string) error {
	return t.deleteOne(ctx, "pet", `DELETE FROM pets WHERE id = $1`, id)
}

// birth_date es DATE; la fecha cero se guarda como NULL.
func nullDate(d time.Time) *time.Time {
	if d.IsZero() {
		return nil
	}
	return &d
}
