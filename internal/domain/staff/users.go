package staff

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/platform/validation"
	"vet-appointments/internal/ports/auth"
)

// Valor de relleno para datos que el proveedor de identidad no entrega.
const placeholder = "N/A"

// ProfileInput son los datos personales editables de un usuario.
type ProfileInput struct {
	Email   string `json:"email" validate:"required,email,max=256"`
	Name    string `json:"name" validate:"required,max=100"`
	Phone   string `json:"phone" validate:"required,max=20"`
	Address string `json:"address" validate:"required,max=200"`
}

func (in ProfileInput) normalized() ProfileInput {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	return in
}

// NewUserInput agrega el rol inicial.
type NewUserInput struct {
	ProfileInput
	Role string `json:"role" validate:"required"`
}

// DeletionResult describe lo que arrastró el borrado de un usuario.
type DeletionResult struct {
	UserID       string
	Departure    *DepartureResult
	OrphanedPets int
}

func (s *Service) CreateUser(ctx context.Context, req clinic.Requester, in NewUserInput) (clinic.User, error) {
	if err := clinic.Require(req, clinic.CapUsersManage); err != nil {
		return clinic.User{}, err
	}
	in.ProfileInput = in.ProfileInput.normalized()

	var out clinic.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		var v clinic.Validation
		v.Merge(validation.Struct(in))

		role, err := tx.FindRoleByName(ctx, in.Role)
		if err != nil {
			if clinic.KindOf(err) != clinic.KindNotFound {
				return err
			}
			if !v.Has("role") {
				v.Add("role", "oneof", "must be Administrador, Veterinario or Cliente")
			}
		}
		if err := s.checkEmail(ctx, tx, &v, in.Email, ""); err != nil {
			return err
		}
		if err := v.Err(); err != nil {
			return err
		}

		now := s.now()
		u := clinic.User{
			ID:         uuid.NewString(),
			ExternalID: "", // se vincula en el primer ingreso
			Email:      in.Email,
			Name:       in.Name,
			Phone:      in.Phone,
			Address:    in.Address,
			Role:       role,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		var change RoleChange
		if err := s.reconcile(ctx, tx, u, now, &change); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return clinic.User{}, clinic.AsError(err)
	}

	s.log.Info("user created", map[string]any{"user_id": out.ID, "role": out.Role.Name, "requester_id": req.UserID})
	return out, nil
}

// UpdateUser solo toca datos personales. El rol se cambia con AssignRole.
func (s *Service) UpdateUser(ctx context.Context, req clinic.Requester, id string, in ProfileInput) (clinic.User, error) {
	id = strings.TrimSpace(id)
	if err := clinic.Require(req, clinic.CapUsersManage); err != nil {
		return clinic.User{}, err
	}
	in = in.normalized()

	var out clinic.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}

		var v clinic.Validation
		v.Merge(validation.Struct(in))
		if err := s.checkEmail(ctx, tx, &v, in.Email, u.ID); err != nil {
			return err
		}
		if err := v.Err(); err != nil {
			return err
		}

		u.Email = in.Email
		u.Name = in.Name
		u.Phone = in.Phone
		u.Address = in.Address
		u.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return clinic.User{}, clinic.AsError(err)
	}
	return out, nil
}

// DeleteUser borra al usuario. Si atendía, primero corre la salida del
// veterinario; si era cliente, aplica la política de mascotas.
func (s *Service) DeleteUser(ctx context.Context, req clinic.Requester, id string) (DeletionResult, error) {
	id = strings.TrimSpace(id)
	if err := clinic.Require(req, clinic.CapUsersManage); err != nil {
		return DeletionResult{}, err
	}
	if id != "" && id == req.UserID {
		return DeletionResult{}, clinic.SelfModificationDenied("cannot delete your own user")
	}

	out := DeletionResult{UserID: id}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			return err
		}

		hasVet, err := exists(tx.GetVeterinarian(ctx, id))
		if err != nil {
			return err
		}
		if hasVet {
			dep, err := s.departure.Run(ctx, tx, id, s.now())
			if err != nil {
				return err
			}
			out.Departure = &dep
		}

		hasClient, err := exists(tx.GetClient(ctx, id))
		if err != nil {
			return err
		}
		if hasClient {
			orphaned, err := s.removeClient(ctx, tx, id)
			if err != nil {
				return err
			}
			out.OrphanedPets = orphaned
		}

		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return DeletionResult{}, clinic.AsError(err)
	}

	fields := map[string]any{"user_id": id, "requester_id": req.UserID}
	if out.Departure != nil {
		fields["reassigned"] = len(out.Departure.Reassigned)
		fields["cancelled"] = len(out.Departure.Cancelled)
	}
	s.log.Info("user deleted", fields)
	return out, nil
}

// GetUser: el Administrador ve a cualquiera, el resto solo a sí mismo.
func (s *Service) GetUser(ctx context.Context, req clinic.Requester, id string) (clinic.User, error) {
	id = strings.TrimSpace(id)
	if id != req.UserID {
		if err := clinic.Require(req, clinic.CapUsersManage); err != nil {
			return clinic.User{}, err
		}
	}

	var out clinic.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		u, err := tx.GetUser(ctx, id)
		out = u
		return err
	})
	if err != nil {
		return clinic.User{}, clinic.AsError(err)
	}
	return out, nil
}

// ListUsers ordenados por email.
func (s *Service) ListUsers(ctx context.Context, req clinic.Requester) ([]clinic.User, error) {
	if err := clinic.Require(req, clinic.CapUsersManage); err != nil {
		return nil, err
	}

	var out []clinic.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		items, err := tx.ListUsers(ctx)
		out = items
		return err
	})
	if err != nil {
		return nil, clinic.AsError(err)
	}
	return out, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]clinic.Role, error) {
	var out []clinic.Role
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		items, err := tx.ListRoles(ctx)
		out = items
		return err
	})
	if err != nil {
		return nil, clinic.AsError(err)
	}
	return out, nil
}

// ProvisionOnSignIn devuelve el usuario del proveedor externo y lo crea como
// Cliente en el primer ingreso. Si un Administrador ya dio de alta ese email,
// se vincula ese usuario en vez de duplicarlo.
func (s *Service) ProvisionOnSignIn(ctx context.Context, externalID, email string) (clinic.User, error) {
	externalID = strings.TrimSpace(externalID)
	email = strings.TrimSpace(email)

	if externalID == "" {
		var v clinic.Validation
		v.Add("external_id", "required", "is required")
		return clinic.User{}, v.Err()
	}

	var (
		out     clinic.User
		created bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		u, err := tx.GetUserByExternalID(ctx, externalID)
		if err == nil {
			out = u
			return nil
		}
		if clinic.KindOf(err) != clinic.KindNotFound {
			return err
		}

		var v clinic.Validation
		v.Merge(validation.Struct(struct {
			Email string `json:"email" validate:"required,email,max=256"`
		}{email}))
		if err := v.Err(); err != nil {
			return err
		}

		now := s.now()
		if u, err := tx.GetUserByEmail(ctx, email); err == nil {
			// Solo se vincula un usuario que nunca ingresó.
			if u.ExternalID != "" {
				return clinic.AccessDenied("email %q is linked to another identity", email)
			}
			u.ExternalID = externalID
			u.UpdatedAt = now
			out = u
			return tx.SaveUser(ctx, u)
		} else if clinic.KindOf(err) != clinic.KindNotFound {
			return err
		}

		role, err := tx.FindRoleByName(ctx, string(clinic.RoleClient))
		if err != nil {
			return err
		}
		u = clinic.User{
			ID:         uuid.NewString(),
			ExternalID: externalID,
			Email:      email,
			Name:       displayName(email),
			Phone:      placeholder,
			Address:    placeholder,
			Role:       role,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		if err := tx.SaveClient(ctx, clinic.Client{UserID: u.ID}); err != nil {
			return err
		}
		out = u
		created = true
		return nil
	})
	if err != nil {
		return clinic.User{}, clinic.AsError(err)
	}

	if created {
		s.log.Info("user provisioned", map[string]any{"user_id": out.ID, "email": out.Email})
	}
	return out, nil
}

// Resolve implementa middleware.RequesterResolver. Acepta tanto el id interno
// como el id del proveedor; con email provisiona en el primer ingreso.
func (s *Service) Resolve(ctx context.Context, claims auth.Claims) (clinic.Requester, error) {
	uid := strings.TrimSpace(claims.UserID)

	var (
		found clinic.User
		ok    bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		u, err := tx.GetUser(ctx, uid)
		if err == nil {
			found, ok = u, true
			return nil
		}
		if clinic.KindOf(err) != clinic.KindNotFound {
			return err
		}
		u, err = tx.GetUserByExternalID(ctx, uid)
		if err == nil {
			found, ok = u, true
			return nil
		}
		if clinic.KindOf(err) != clinic.KindNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return clinic.Requester{}, clinic.AsError(err)
	}
	if ok {
		return clinic.RequesterOf(found), nil
	}

	if strings.TrimSpace(claims.Email) == "" {
		return clinic.Requester{}, clinic.NotFound("user %q not found", uid)
	}
	u, err := s.ProvisionOnSignIn(ctx, uid, claims.Email)
	if err != nil {
		return clinic.Requester{}, err
	}
	return clinic.RequesterOf(u), nil
}

// RetireVeterinarian corre la salida para un perfil de veterinario cuyo
// usuario ya no tiene el rol (o ya no existe). Con el rol vigente se debe
// usar AssignRole o DeleteUser, que además ajustan el usuario.
func (s *Service) RetireVeterinarian(ctx context.Context, req clinic.Requester, veterinarianID string) (DepartureResult, error) {
	veterinarianID = strings.TrimSpace(veterinarianID)
	if err := clinic.Require(req, clinic.CapUsersManage); err != nil {
		return DepartureResult{}, err
	}

	var out DepartureResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		u, err := tx.GetUser(ctx, veterinarianID)
		if err != nil && clinic.KindOf(err) != clinic.KindNotFound {
			return err
		}
		if err == nil && u.Is(clinic.RoleVeterinarian) {
			var v clinic.Validation
			v.Add("veterinarian_id", "active", "user still holds the Veterinario role; change the role or delete the user")
			return v.Err()
		}

		dep, err := s.departure.Run(ctx, tx, veterinarianID, s.now())
		if err != nil {
			return err
		}
		out = dep
		return nil
	})
	if err != nil {
		return DepartureResult{}, clinic.AsError(err)
	}

	s.log.Info("veterinarian retired", map[string]any{
		"veterinarian_id": veterinarianID,
		"reassigned":      len(out.Reassigned),
		"cancelled":       len(out.Cancelled),
	})
	return out, nil
}

func (s *Service) checkEmail(ctx context.Context, tx clinic.Tx, v *clinic.Validation, email, selfID string) error {
	if email == "" || v.Has("email") {
		return nil
	}
	other, err := tx.GetUserByEmail(ctx, email)
	if err != nil {
		if clinic.KindOf(err) == clinic.KindNotFound {
			return nil
		}
		return err
	}
	if other.ID != selfID {
		v.Add("email", "unique", "email already registered")
	}
	return nil
}

func displayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
