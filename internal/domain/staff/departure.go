package staff

import (
	"context"
	"sort"
	"strings"
	"time"

	"vet-appointments/internal/domain/appointments"
	"vet-appointments/internal/domain/clinic"
)

// DepartureResult resume qué pasó con la agenda futura del veterinario saliente.
type DepartureResult struct {
	VeterinarianID string
	Reassigned     map[string]string // appointment id -> veterinario nuevo
	Cancelled      []string
}

func (r DepartureResult) Total() int {
	return len(r.Reassigned) + len(r.Cancelled)
}

// Departure reasigna o cancela los turnos futuros de un veterinario que deja
// de atender, y después borra su perfil. Corre siempre dentro de la tx del
// llamador (borrado de usuario o cambio de rol).
type Departure struct {
	checker appointments.Checker
}

// Run:
//  1. Turnos del veterinario con fecha estrictamente posterior a now.
//     Los pasados no se tocan (historial).
//  2. Candidatos: otros perfiles cuyo usuario hoy tiene rol Veterinario,
//     por user id ascendente.
//  3. Por turno, el primer candidato libre en ese instante. El estado no cambia.
//  4. Sin candidato libre: se limpia el veterinario y el turno queda Cancelado.
//     A diferencia del reemplazo único de la versión anterior, nunca se crea
//     un doble turno aunque haya otros veterinarios.
//  5. Se borra el perfil.
func (d Departure) Run(ctx context.Context, tx clinic.Tx, veterinarianID string, now time.Time) (DepartureResult, error) {
	veterinarianID = strings.TrimSpace(veterinarianID)
	res := DepartureResult{VeterinarianID: veterinarianID, Reassigned: map[string]string{}}

	if _, err := tx.GetVeterinarian(ctx, veterinarianID); err != nil {
		return res, err
	}

	after := now
	future, err := tx.QueryAppointments(ctx, clinic.AppointmentFilter{
		VeterinarianID: veterinarianID,
		After:          &after,
	})
	if err != nil {
		return res, err
	}

	all, err := tx.GetVeterinariansByRole(ctx)
	if err != nil {
		return res, err
	}
	candidates := make([]string, 0, len(all))
	for _, v := range all {
		if v.UserID != veterinarianID {
			candidates = append(candidates, v.UserID)
		}
	}
	sort.Strings(candidates)

	// Más temprano primero, para que el resultado no dependa del orden del store.
	sort.Slice(future, func(i, j int) bool {
		if !future[i].DateTime.Equal(future[j].DateTime) {
			return future[i].DateTime.Before(future[j].DateTime)
		}
		return future[i].ID < future[j].ID
	})

	for _, a := range future {
		replacement, err := d.pick(ctx, tx, a, candidates)
		if err != nil {
			return res, err
		}

		if replacement != "" {
			a.VeterinarianID = replacement
			res.Reassigned[a.ID] = replacement
		} else {
			a.VeterinarianID = ""
			a.State = clinic.StateCancelled
			res.Cancelled = append(res.Cancelled, a.ID)
		}
		a.UpdatedAt = now

		if err := tx.SaveAppointment(ctx, a); err != nil {
			return res, err
		}
	}

	if err := tx.DeleteVeterinarian(ctx, veterinarianID); err != nil {
		return res, err
	}
	return res, nil
}

func (d Departure) pick(ctx context.Context, tx clinic.Tx, a clinic.Appointment, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	// Un turno cancelado no ocupa el horario de nadie.
	if !a.State.Active() {
		return candidates[0], nil
	}
	for _, c := range candidates {
		busy, err := d.checker.HasConflict(ctx, tx, c, a.DateTime, a.ID)
		if err != nil {
			return "", err
		}
		if !busy {
			return c, nil
		}
	}
	return "", nil
}
