package staff

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/platform/validation"
)

// BootstrapAdministrator garantiza que exista un Administrador con ese email.
// No pide requester: lo usan el arranque y el comando seed, nunca la API.
// Si el usuario ya existe con otro rol, se promueve y se ajustan sus perfiles.
func (s *Service) BootstrapAdministrator(ctx context.Context, email string) (clinic.User, bool, error) {
	email = strings.TrimSpace(email)

	var v clinic.Validation
	v.Merge(validation.Struct(struct {
		Email string `json:"email" validate:"required,email,max=256"`
	}{email}))
	if err := v.Err(); err != nil {
		return clinic.User{}, false, err
	}

	var (
		out     clinic.User
		changed bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		role, err := tx.FindRoleByName(ctx, string(clinic.RoleAdministrator))
		if err != nil {
			return err
		}
		now := s.now()

		u, err := tx.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			if u.Is(clinic.RoleAdministrator) {
				out = u
				return nil
			}
			u.Role = role
			u.UpdatedAt = now
		case clinic.KindOf(err) == clinic.KindNotFound:
			u = clinic.User{
				ID:         uuid.NewString(),
				ExternalID: "",
				Email:      email,
				Name:       displayName(email),
				Phone:      placeholder,
				Address:    placeholder,
				Role:       role,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
		default:
			return err
		}

		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		var change RoleChange
		if err := s.reconcile(ctx, tx, u, now, &change); err != nil {
			return err
		}
		out, changed = u, true
		return nil
	})
	if err != nil {
		return clinic.User{}, false, clinic.AsError(err)
	}

	if changed {
		s.log.Info("administrator bootstrapped", map[string]any{"user_id": out.ID, "email": out.Email})
	}
	return out, changed, nil
}
