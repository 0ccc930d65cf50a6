package appointments

import (
	"context"
	"strings"
	"time"

	"vet-appointments/internal/domain/clinic"
)

// Checker detecta choques de turnos. Un turno es un instante, no un intervalo:
// chocan dos turnos activos del mismo veterinario en el mismo minuto.
//
// Es un chequeo de aplicación. Bajo concurrencia real lo que cierra la carrera
// es la unicidad del store (SaveAppointment devuelve KindConflict).
type Checker struct{}

// HasConflict: veterinarianID vacío nunca choca. excludeID evita que un turno
// choque consigo mismo al editarlo.
func (Checker) HasConflict(ctx context.Context, tx clinic.Tx, veterinarianID string, at time.Time, excludeID string) (bool, error) {
	veterinarianID = strings.TrimSpace(veterinarianID)
	if veterinarianID == "" {
		return false, nil
	}

	slot := clinic.SlotTime(at)
	items, err := tx.QueryAppointments(ctx, clinic.AppointmentFilter{
		VeterinarianID: veterinarianID,
		At:             &slot,
		ActiveOnly:     true,
		ExcludeID:      strings.TrimSpace(excludeID),
	})
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}
