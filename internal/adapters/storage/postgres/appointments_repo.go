package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"vet-appointments/internal/domain/clinic"
)

const appointmentColumns = `a.id, a.date_time, a.state, a.pet_id, a.veterinarian_id, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row) (clinic.Appointment, error) {
	var (
		a     clinic.Appointment
		state string
		vet   *string
	)
	if err := row.Scan(&a.ID, &a.DateTime, &state, &a.PetID, &vet, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return clinic.Appointment{}, err
	}
	a.State = clinic.State(state)
	a.DateTime = a.DateTime.UTC()
	if vet != nil {
		a.VeterinarianID = *vet
	}
	return a, nil
}

func (t *tx) GetAppointment(ctx context.Context, id string) (clinic.Appointment, error) {
	id = strings.TrimSpace(id)
	a, err := scanAppointment(t.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinic.Appointment{}, clinic.NotFound("appointment %q not found", id)
		}
		return clinic.Appointment{}, mapError(err)
	}
	return a, nil
}

// appointmentQuery arma el SELECT para un filtro. Mismo orden que el store en memoria.
func appointmentQuery(f clinic.AppointmentFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.VeterinarianID != "" {
		add("a.veterinarian_id = $%d", f.VeterinarianID)
	}
	if f.PetID != "" {
		add("a.pet_id = $%d", f.PetID)
	}
	if f.ClientID != "" {
		add("p.client_id = $%d", f.ClientID)
	}
	if f.At != nil {
		add("a.date_time = $%d", *f.At)
	}
	if f.After != nil {
		add("a.date_time > $%d", *f.After)
	}
	if f.ActiveOnly {
		where = append(where, "a.state <> '"+string(clinic.StateCancelled)+"'")
	}
	if f.ExcludeID != "" {
		add("a.id <> $%d", f.ExcludeID)
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + appointmentColumns + ` FROM appointments a`)
	if f.ClientID != "" {
		b.WriteString(` JOIN pets p ON p.id = a.pet_id`)
	}
	if len(where) > 0 {
		b.WriteString(` WHERE `)
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(` ORDER BY a.date_time DESC, a.id ASC`)
	return b.String(), args
}

func (t *tx) QueryAppointments(ctx context.Context, filter clinic.AppointmentFilter) ([]clinic.Appointment, error) {
	sql, args := appointmentQuery(filter)
	rows, err := t.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]clinic.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, a)
	}
	return out, mapError(rows.Err())
}

// SaveAppointment: un choque con appointments_active_slot_key vuelve como KindConflict.
func (t *tx) SaveAppointment(ctx context.Context, a clinic.Appointment) error {
	var vet *string
	if a.Assigned() {
		v := a.VeterinarianID
		vet = &v
	}

	_, err := t.exec(ctx, `
		INSERT INTO appointments (id, date_time, state, pet_id, veterinarian_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			date_time = EXCLUDED.date_time,
			state = EXCLUDED.state,
			pet_id = EXCLUDED.pet_id,
			veterinarian_id = EXCLUDED.veterinarian_id,
			updated_at = EXCLUDED.updated_at
	`,
		a.ID, a.DateTime, string(a.State), a.PetID, vet, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (t *tx) DeleteAppointment(ctx context.Context, id string) error {
	return t.deleteOne(ctx, "appointment", `DELETE FROM appointments WHERE id = $1`, id)
}
