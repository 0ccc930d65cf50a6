package staff

import (
	"context"
	"strings"
	"time"

	"vet-appointments/internal/domain/clinic"
)

// RoleChange describe el efecto de AssignRole.
type RoleChange struct {
	UserID string
	From   clinic.RoleName
	To     clinic.RoleName

	// Departure solo viene cuando el usuario dejó de ser Veterinario.
	Departure *DepartureResult
	// ClientRemoved indica que se borró el perfil de cliente;
	// OrphanedPets cuántas mascotas quedaron sin perfil de dueño.
	ClientRemoved bool
	OrphanedPets  int
}

// AssignRole cambia el rol de userID y deja los perfiles coherentes con el rol
// nuevo, todo en una sola transacción.
//
// Orden de chequeos: auto-modificación, permiso del requester, rol, usuario.
func (s *Service) AssignRole(ctx context.Context, userID, newRoleName, requesterID string) (RoleChange, error) {
	userID = strings.TrimSpace(userID)
	requesterID = strings.TrimSpace(requesterID)

	if userID != "" && userID == requesterID {
		return RoleChange{}, clinic.SelfModificationDenied("cannot change your own role")
	}

	var out RoleChange
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		if _, err := administrator(ctx, tx, requesterID, clinic.CapUsersAssignRole); err != nil {
			return err
		}

		role, err := tx.FindRoleByName(ctx, newRoleName)
		if err != nil {
			if clinic.KindOf(err) == clinic.KindNotFound {
				return clinic.InvalidRole(newRoleName)
			}
			return err
		}

		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		now := s.now()
		out = RoleChange{UserID: user.ID, From: user.Role.Name, To: role.Name}

		user.Role = role
		user.UpdatedAt = now
		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}

		return s.reconcile(ctx, tx, user, now, &out)
	})
	if err != nil {
		return RoleChange{}, clinic.AsError(err)
	}

	fields := map[string]any{
		"user_id":      out.UserID,
		"from":         out.From,
		"to":           out.To,
		"requester_id": requesterID,
	}
	if out.Departure != nil {
		fields["reassigned"] = len(out.Departure.Reassigned)
		fields["cancelled"] = len(out.Departure.Cancelled)
	}
	if out.OrphanedPets > 0 {
		fields["orphaned_pets"] = out.OrphanedPets
	}
	s.log.Info("role assigned", fields)
	return out, nil
}

// reconcile deja exactamente el perfil que pide el rol actual del usuario:
//
//	Veterinario   -> perfil de veterinario, sin perfil de cliente
//	Cliente       -> perfil de cliente, sin perfil de veterinario (con salida)
//	Administrador -> ninguno de los dos
//
// Es idempotente: reasignar el mismo rol no cambia nada.
func (s *Service) reconcile(ctx context.Context, tx clinic.Tx, user clinic.User, now time.Time, out *RoleChange) error {
	hasClient, err := exists(tx.GetClient(ctx, user.ID))
	if err != nil {
		return err
	}
	hasVet, err := exists(tx.GetVeterinarian(ctx, user.ID))
	if err != nil {
		return err
	}

	wantClient := user.Is(clinic.RoleClient)
	wantVet := user.Is(clinic.RoleVeterinarian)

	if hasVet && !wantVet {
		dep, err := s.departure.Run(ctx, tx, user.ID, now)
		if err != nil {
			return err
		}
		out.Departure = &dep
	}
	if hasClient && !wantClient {
		orphaned, err := s.removeClient(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		out.ClientRemoved = true
		out.OrphanedPets = orphaned
	}

	if wantVet && !hasVet {
		if err := tx.SaveVeterinarian(ctx, clinic.Veterinarian{UserID: user.ID}); err != nil {
			return err
		}
	}
	if wantClient && !hasClient {
		if err := tx.SaveClient(ctx, clinic.Client{UserID: user.ID}); err != nil {
			return err
		}
	}
	return nil
}
