package staff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/platform/logger"
)

// PetsPolicy decide qué pasa con las mascotas de un Cliente cuyo perfil
// desaparece (pasa a Veterinario/Administrador o se borra el usuario).
type PetsPolicy string

const (
	// PetsPolicyBlock rechaza la transición mientras el cliente tenga mascotas.
	PetsPolicyBlock PetsPolicy = "block"
	// PetsPolicyOrphan deja las mascotas apuntando a un dueño sin perfil.
	PetsPolicyOrphan PetsPolicy = "orphan"
)

func ParsePetsPolicy(s string) (PetsPolicy, error) {
	switch PetsPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PetsPolicyBlock, "":
		return PetsPolicyBlock, nil
	case PetsPolicyOrphan:
		return PetsPolicyOrphan, nil
	default:
		return "", fmt.Errorf("unknown pets policy %q", s)
	}
}

type Service struct {
	store     clinic.Store
	departure Departure
	policy    PetsPolicy
	log       logger.Logger
	now       func() time.Time
}

func NewService(store clinic.Store, log logger.Logger, policy PetsPolicy) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if policy == "" {
		policy = PetsPolicyBlock
	}
	return &Service{
		store:  store,
		policy: policy,
		log:    log.With(map[string]any{"component": "staff"}),
		now:    time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) Policy() PetsPolicy { return s.policy }

// removeClient borra el perfil de cliente respetando la política de mascotas.
// Devuelve cuántas mascotas quedaron huérfanas.
func (s *Service) removeClient(ctx context.Context, tx clinic.Tx, userID string) (int, error) {
	pets, err := tx.ListPets(ctx, clinic.PetFilter{ClientID: userID})
	if err != nil {
		return 0, err
	}
	if len(pets) > 0 && s.policy == PetsPolicyBlock {
		var v clinic.Validation
		v.Add("client", "has_pets", fmt.Sprintf("client owns %d pet(s); reassign or delete them first", len(pets)))
		return 0, v.Err()
	}
	if err := tx.DeleteClient(ctx, userID); err != nil {
		return 0, err
	}
	return len(pets), nil
}

// exists convierte el resultado de un Get* en presencia. Solo NotFound es "no está".
func exists[T any](_ T, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if clinic.KindOf(err) == clinic.KindNotFound {
		return false, nil
	}
	return false, err
}

// administrator carga al requester y exige la capability pedida.
func administrator(ctx context.Context, tx clinic.Tx, requesterID string, c clinic.Capability) (clinic.User, error) {
	u, err := tx.GetUser(ctx, requesterID)
	if err != nil {
		if clinic.KindOf(err) == clinic.KindNotFound {
			return clinic.User{}, clinic.AccessDenied("requester %q not found", requesterID)
		}
		return clinic.User{}, err
	}
	if err := clinic.Require(clinic.RequesterOf(u), c); err != nil {
		return clinic.User{}, err
	}
	return u, nil
}
