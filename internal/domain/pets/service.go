package pets

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/platform/logger"
	"vet-appointments/internal/platform/validation"
)

type Service struct {
	store clinic.Store
	log   logger.Logger
	now   func() time.Time
}

func NewService(store clinic.Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store: store,
		log:   log.With(map[string]any{"component": "pets"}),
		now:   time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Input es el perfil completo de la mascota (alta y edición).
type Input struct {
	ClientID  string    `json:"client_id" validate:"required"`
	Name      string    `json:"name" validate:"required,max=100"`
	Species   string    `json:"species" validate:"required,max=50"`
	Breed     string    `json:"breed" validate:"required,max=50"`
	BirthDate time.Time `json:"birth_date" validate:"required"`
}

func (in Input) normalized() Input {
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.Name = strings.TrimSpace(in.Name)
	in.Species = strings.TrimSpace(in.Species)
	in.Breed = strings.TrimSpace(in.Breed)
	return in
}

func (s *Service) Create(ctx context.Context, req clinic.Requester, in Input) (clinic.Pet, error) {
	if err := clinic.Require(req, clinic.CapPetsWrite); err != nil {
		return clinic.Pet{}, err
	}
	in = in.normalized()

	var out clinic.Pet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		if err := s.validate(ctx, tx, in); err != nil {
			return err
		}

		now := s.now()
		p := clinic.Pet{
			ID:        uuid.NewString(),
			ClientID:  in.ClientID,
			Name:      in.Name,
			Species:   in.Species,
			Breed:     in.Breed,
			BirthDate: in.BirthDate,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.SavePet(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return clinic.Pet{}, clinic.AsError(err)
	}

	s.log.Info("pet created", map[string]any{"pet_id": out.ID, "client_id": out.ClientID})
	return out, nil
}

func (s *Service) Update(ctx context.Context, req clinic.Requester, id string, in Input) (clinic.Pet, error) {
	if err := clinic.Require(req, clinic.CapPetsWrite); err != nil {
		return clinic.Pet{}, err
	}
	in = in.normalized()

	var out clinic.Pet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		p, err := tx.GetPet(ctx, id)
		if err != nil {
			return err
		}
		if err := s.validate(ctx, tx, in); err != nil {
			return err
		}

		p.ClientID = in.ClientID
		p.Name = in.Name
		p.Species = in.Species
		p.Breed = in.Breed
		p.BirthDate = in.BirthDate
		p.UpdatedAt = s.now()
		if err := tx.SavePet(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return clinic.Pet{}, clinic.AsError(err)
	}
	return out, nil
}

// Delete borra la mascota y, con ella, todos sus turnos. Devuelve cuántos turnos cayeron.
func (s *Service) Delete(ctx context.Context, req clinic.Requester, id string) (int, error) {
	id = strings.TrimSpace(id)
	if err := clinic.Require(req, clinic.CapPetsWrite); err != nil {
		return 0, err
	}

	var removed int
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		items, err := tx.QueryAppointments(ctx, clinic.AppointmentFilter{PetID: id})
		if err != nil {
			return err
		}
		removed = len(items)
		return tx.DeletePet(ctx, id)
	})
	if err != nil {
		return 0, clinic.AsError(err)
	}

	s.log.Info("pet deleted", map[string]any{"pet_id": id, "appointments_removed": removed, "requester_id": req.UserID})
	return removed, nil
}

func (s *Service) Get(ctx context.Context, req clinic.Requester, id string) (clinic.Pet, error) {
	var out clinic.Pet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		p, err := tx.GetPet(ctx, id)
		if err != nil {
			return err
		}
		if !canRead(req, p) {
			return clinic.AccessDenied("pet %q does not belong to %q", p.ID, req.UserID)
		}
		out = p
		return nil
	})
	if err != nil {
		return clinic.Pet{}, clinic.AsError(err)
	}
	return out, nil
}

// List: Administrador y Veterinario ven todas; Cliente las propias. Orden por nombre.
func (s *Service) List(ctx context.Context, req clinic.Requester) ([]clinic.Pet, error) {
	var filter clinic.PetFilter
	switch {
	case clinic.Can(req.Role, clinic.CapPetsReadAll):
	case clinic.Can(req.Role, clinic.CapPetsReadOwn) && strings.TrimSpace(req.UserID) != "":
		filter.ClientID = req.UserID
	default:
		return nil, clinic.AccessDenied("role %q cannot list pets", req.Role)
	}

	var out []clinic.Pet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		items, err := tx.ListPets(ctx, filter)
		out = items
		return err
	})
	if err != nil {
		return nil, clinic.AsError(err)
	}
	return out, nil
}

func canRead(req clinic.Requester, p clinic.Pet) bool {
	if clinic.Can(req.Role, clinic.CapPetsReadAll) {
		return true
	}
	return clinic.Can(req.Role, clinic.CapPetsReadOwn) && req.UserID != "" && p.ClientID == req.UserID
}

func (s *Service) validate(ctx context.Context, tx clinic.Tx, in Input) error {
	var v clinic.Validation
	v.Merge(validation.Struct(in))

	if !in.BirthDate.IsZero() && in.BirthDate.After(s.now()) {
		v.Add("birth_date", "past", "cannot be in the future")
	}
	if in.ClientID != "" {
		if _, err := tx.GetClient(ctx, in.ClientID); err != nil {
			if clinic.KindOf(err) != clinic.KindNotFound {
				return err
			}
			v.Add("client_id", "exists", "client not found")
		}
	}
	return v.Err()
}
