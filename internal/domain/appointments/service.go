package appointments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/platform/logger"
)

type Service struct {
	store   clinic.Store
	checker Checker
	log     logger.Logger
	now     func() time.Time
}

func NewService(store clinic.Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store: store,
		log:   log.With(map[string]any{"component": "appointments"}),
		now:   time.Now,
	}
}

// WithClock reemplaza el reloj (zona de la clínica, tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

type Input struct {
	DateTime       time.Time
	PetID          string
	VeterinarianID string
}

// Create registra un turno ya confirmado. Un Administrador elige el
// veterinario; un Veterinario siempre se lo asigna a sí mismo.
func (s *Service) Create(ctx context.Context, req clinic.Requester, in Input) (clinic.Appointment, error) {
	if err := clinic.Require(req, clinic.CapAppointmentsCreate); err != nil {
		return clinic.Appointment{}, err
	}

	var out clinic.Appointment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		valid, err := s.validate(ctx, tx, req, in, "")
		if err != nil {
			return err
		}

		now := s.now()
		a := clinic.Appointment{
			ID:             uuid.NewString(),
			DateTime:       valid.DateTime,
			State:          clinic.StateConfirmed,
			PetID:          valid.PetID,
			VeterinarianID: valid.VeterinarianID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.SaveAppointment(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return clinic.Appointment{}, clinic.AsError(err)
	}

	s.log.Info("appointment created", map[string]any{
		"appointment_id":  out.ID,
		"veterinarian_id": out.VeterinarianID,
		"date_time":       out.DateTime,
		"requester_id":    req.UserID,
	})
	return out, nil
}

// Edit reescribe fecha, mascota y veterinario. El estado no cambia.
func (s *Service) Edit(ctx context.Context, req clinic.Requester, id string, in Input) (clinic.Appointment, error) {
	if !clinic.Can(req.Role, clinic.CapAppointmentsEditAny) && !clinic.Can(req.Role, clinic.CapAppointmentsEditOwn) {
		return clinic.Appointment{}, clinic.AccessDenied("role %q cannot edit appointments", req.Role)
	}

	var (
		out     clinic.Appointment
		changed bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		existing, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		// Acceso antes que cualquier validación.
		if !canTouch(req, existing) {
			return clinic.AccessDenied("appointment %q is not assigned to %q", existing.ID, req.UserID)
		}

		valid, err := s.validate(ctx, tx, req, in, existing.ID)
		if err != nil {
			return err
		}

		if valid.DateTime.Equal(existing.DateTime) &&
			valid.PetID == existing.PetID &&
			valid.VeterinarianID == existing.VeterinarianID {
			out = existing
			return nil
		}

		existing.DateTime = valid.DateTime
		existing.PetID = valid.PetID
		existing.VeterinarianID = valid.VeterinarianID
		existing.UpdatedAt = s.now()
		if err := tx.SaveAppointment(ctx, existing); err != nil {
			return err
		}
		out = existing
		changed = true
		return nil
	})
	if err != nil {
		return clinic.Appointment{}, clinic.AsError(err)
	}

	if changed {
		s.log.Info("appointment edited", map[string]any{
			"appointment_id":  out.ID,
			"veterinarian_id": out.VeterinarianID,
			"date_time":       out.DateTime,
			"requester_id":    req.UserID,
		})
	}
	return out, nil
}

// CancelByClient es la autogestión del dueño: solo turnos de sus mascotas,
// estrictamente futuros respecto de now y todavía activos.
func (s *Service) CancelByClient(ctx context.Context, id, requesterClientID string, now time.Time) (clinic.Appointment, error) {
	requesterClientID = strings.TrimSpace(requesterClientID)

	var out clinic.Appointment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		a, err := tx.GetAppointment(ctx, id)
		if err != nil {
			if clinic.KindOf(err) == clinic.KindNotFound {
				return clinic.Refused(clinic.KindNotFound, clinic.ReasonNotFound, "appointment not found")
			}
			return err
		}

		pet, err := tx.GetPet(ctx, a.PetID)
		if err != nil && clinic.KindOf(err) != clinic.KindNotFound {
			return err
		}
		// Un turno ajeno se reporta igual que uno inexistente.
		if err != nil || requesterClientID == "" || pet.ClientID != requesterClientID {
			return clinic.Refused(clinic.KindNotFound, clinic.ReasonNotFound, "appointment not found")
		}

		if !a.DateTime.After(now) {
			return clinic.Refused(clinic.KindValidationFailed, clinic.ReasonAlreadyPast, "cannot cancel an appointment that already took place")
		}
		if !a.State.CanTransitionTo(clinic.StateCancelled) {
			return clinic.Refused(clinic.KindValidationFailed, clinic.ReasonAlreadyCancelled, "appointment is already cancelled")
		}

		a.State = clinic.StateCancelled
		a.UpdatedAt = now
		if err := tx.SaveAppointment(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return clinic.Appointment{}, clinic.AsError(err)
	}

	s.log.Info("appointment cancelled by client", map[string]any{
		"appointment_id": out.ID,
		"client_id":      requesterClientID,
	})
	return out, nil
}

// DeleteByAdministrator borra el turno sin mirar su estado.
func (s *Service) DeleteByAdministrator(ctx context.Context, req clinic.Requester, id string) error {
	if err := clinic.Require(req, clinic.CapAppointmentsDelete); err != nil {
		return err
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		return tx.DeleteAppointment(ctx, strings.TrimSpace(id))
	})
	if err != nil {
		return clinic.AsError(err)
	}

	s.log.Info("appointment deleted", map[string]any{"appointment_id": id, "requester_id": req.UserID})
	return nil
}

// List: Administrador ve todo, Veterinario lo asignado a él, Cliente lo de sus mascotas.
// Orden: fecha más reciente primero.
func (s *Service) List(ctx context.Context, req clinic.Requester) ([]clinic.Appointment, error) {
	var filter clinic.AppointmentFilter
	switch {
	case clinic.Can(req.Role, clinic.CapAppointmentsReadAll):
	case strings.TrimSpace(req.UserID) == "":
		return nil, clinic.AccessDenied("requester id required")
	case clinic.Can(req.Role, clinic.CapAppointmentsReadOwn):
		filter.VeterinarianID = req.UserID
	case clinic.Can(req.Role, clinic.CapAppointmentsReadPets):
		filter.ClientID = req.UserID
	default:
		return nil, clinic.AccessDenied("role %q cannot list appointments", req.Role)
	}

	var out []clinic.Appointment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		items, err := tx.QueryAppointments(ctx, filter)
		out = items
		return err
	})
	if err != nil {
		return nil, clinic.AsError(err)
	}
	return out, nil
}

// Get aplica la misma regla de visibilidad que List.
func (s *Service) Get(ctx context.Context, req clinic.Requester, id string) (clinic.Appointment, error) {
	var out clinic.Appointment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		a, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		switch {
		case clinic.Can(req.Role, clinic.CapAppointmentsReadAll):
		case clinic.Can(req.Role, clinic.CapAppointmentsReadOwn):
			if a.VeterinarianID != req.UserID {
				return clinic.AccessDenied("appointment %q is not assigned to %q", a.ID, req.UserID)
			}
		case clinic.Can(req.Role, clinic.CapAppointmentsReadPets):
			pet, err := tx.GetPet(ctx, a.PetID)
			if err != nil || pet.ClientID != req.UserID {
				return clinic.AccessDenied("appointment %q does not belong to %q", a.ID, req.UserID)
			}
		default:
			return clinic.AccessDenied("role %q cannot read appointments", req.Role)
		}

		out = a
		return nil
	})
	if err != nil {
		return clinic.Appointment{}, clinic.AsError(err)
	}
	return out, nil
}

func canTouch(req clinic.Requester, a clinic.Appointment) bool {
	if clinic.Can(req.Role, clinic.CapAppointmentsEditAny) {
		return true
	}
	return clinic.Can(req.Role, clinic.CapAppointmentsEditOwn) && a.VeterinarianID != "" && a.VeterinarianID == req.UserID
}

// validate junta todas las violaciones de campo antes de escribir nada.
// Un choque de horario sin otros errores se reporta como Conflict; con otros
// errores viaja dentro del set de validación.
func (s *Service) validate(ctx context.Context, tx clinic.Tx, req clinic.Requester, in Input, excludeID string) (Input, error) {
	var v clinic.Validation

	in.PetID = strings.TrimSpace(in.PetID)
	in.VeterinarianID = strings.TrimSpace(in.VeterinarianID)

	if in.DateTime.IsZero() {
		v.Add("date_time", "required", "is required")
	} else {
		in.DateTime = clinic.SlotTime(in.DateTime)
	}

	if in.PetID == "" {
		v.Add("pet_id", "required", "is required")
	} else if _, err := tx.GetPet(ctx, in.PetID); err != nil {
		if clinic.KindOf(err) != clinic.KindNotFound {
			return in, err
		}
		v.Add("pet_id", "exists", "pet not found")
	}

	if clinic.Can(req.Role, clinic.CapAppointmentsChooseVet) {
		if in.VeterinarianID == "" {
			v.Add("veterinarian_id", "required", "a veterinarian must be selected")
		} else if _, err := tx.GetVeterinarian(ctx, in.VeterinarianID); err != nil {
			if clinic.KindOf(err) != clinic.KindNotFound {
				return in, err
			}
			v.Add("veterinarian_id", "exists", "veterinarian not found")
		}
	} else {
		in.VeterinarianID = req.UserID
		if _, err := tx.GetVeterinarian(ctx, req.UserID); err != nil {
			if clinic.KindOf(err) != clinic.KindNotFound {
				return in, err
			}
			v.Add("veterinarian_id", "exists", "requester has no veterinarian profile")
		}
	}

	if !v.Has("date_time") && !v.Has("veterinarian_id") {
		conflict, err := s.checker.HasConflict(ctx, tx, in.VeterinarianID, in.DateTime, excludeID)
		if err != nil {
			return in, err
		}
		if conflict {
			if v.Empty() {
				return in, clinic.Conflict("veterinarian %q already has an appointment at %s", in.VeterinarianID, in.DateTime.Format("2006-01-02 15:04"))
			}
			v.Add("date_time", "conflict", "veterinarian already has an appointment at this time")
		}
	}

	return in, v.Err()
}
