package pets

import (
	"context"
	"errors"
	"testing"
	"time"

	"vet-appointments/internal/adapters/storage/memory"
	"vet-appointments/internal/domain/clinic"
)

var (
	now   = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	admin = clinic.Requester{UserID: "admin-1", Role: clinic.RoleAdministrator}
	vet   = clinic.Requester{UserID: "vet-1", Role: clinic.RoleVeterinarian}
	owner = clinic.Requester{UserID: "client-1", Role: clinic.RoleClient}
	other = clinic.Requester{UserID: "client-2", Role: clinic.RoleClient}
	puppy = time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx clinic.Tx) error {
		for _, r := range []clinic.Requester{admin, vet, owner, other} {
			role, err := tx.FindRoleByName(ctx, string(r.Role))
			if err != nil {
				return err
			}
			if err := tx.SaveUser(ctx, clinic.User{ID: r.UserID, Email: r.UserID + "@clinic.test", Role: role}); err != nil {
				return err
			}
			switch r.Role {
			case clinic.RoleClient:
				if err := tx.SaveClient(ctx, clinic.Client{UserID: r.UserID}); err != nil {
					return err
				}
			case clinic.RoleVeterinarian:
				if err := tx.SaveVeterinarian(ctx, clinic.Veterinarian{UserID: r.UserID}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewService(store, nil).WithClock(func() time.Time { return now }), store
}

func validInput(client, name string) Input {
	return Input{ClientID: client, Name: name, Species: "Perro", Breed: "Mestizo", BirthDate: puppy}
}

func TestCreate_OnlyAdministrator(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, req := range []clinic.Requester{vet, owner} {
		_, err := svc.Create(ctx, req, validInput(owner.UserID, "Firulais"))
		if !errors.Is(err, clinic.ErrAccessDenied) {
			t.Fatalf("%s: expected access denied, got %v", req.Role, err)
		}
	}

	p, err := svc.Create(ctx, admin, validInput(owner.UserID, "  Firulais "))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Name != "Firulais" || p.ClientID != owner.UserID || !p.CreatedAt.Equal(now) {
		t.Fatalf("unexpected pet %+v", p)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), admin, Input{ClientID: vet.UserID, BirthDate: now.Add(48 * time.Hour)})
	var e *clinic.Error
	if !errors.As(err, &e) || e.Kind != clinic.KindValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}

	seen := map[string]string{}
	for _, f := range e.Fields {
		seen[f.Field] = f.Tag
	}
	want := map[string]string{
		"name":       "required",
		"species":    "required",
		"breed":      "required",
		"birth_date": "past",
		"client_id":  "exists", // vet-1 no tiene perfil de cliente
	}
	for field, tag := range want {
		if seen[field] != tag {
			t.Fatalf("%s: expected %s, got %q (all: %+v)", field, tag, seen[field], e.Fields)
		}
	}
}

func TestDelete_CascadesAppointments(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, admin, validInput(owner.UserID, "Firulais"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		for i, at := range []time.Time{now.Add(24 * time.Hour), now.Add(48 * time.Hour)} {
			a := clinic.Appointment{ID: "a-" + string(rune('1'+i)), DateTime: at, State: clinic.StateConfirmed, PetID: p.ID, VeterinarianID: vet.UserID}
			if err := tx.SaveAppointment(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed appointments: %v", err)
	}

	removed, err := svc.Delete(ctx, admin, p.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 appointments removed, got %d", removed)
	}

	_ = store.WithinTx(ctx, func(ctx context.Context, tx clinic.Tx) error {
		items, _ := tx.QueryAppointments(ctx, clinic.AppointmentFilter{PetID: p.ID})
		if len(items) != 0 {
			t.Errorf("expected no appointments left, got %d", len(items))
		}
		return nil
	})
}

func TestListAndGet_Visibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mine, _ := svc.Create(ctx, admin, validInput(owner.UserID, "Rocky"))
	_, _ = svc.Create(ctx, admin, validInput(owner.UserID, "Ace"))
	theirs, _ := svc.Create(ctx, admin, validInput(other.UserID, "Luna"))

	all, err := svc.List(ctx, vet)
	if err != nil || len(all) != 3 || all[0].Name != "Ace" {
		t.Fatalf("vet list: expected 3 ordered by name, got %+v (%v)", all, err)
	}

	own, err := svc.List(ctx, owner)
	if err != nil || len(own) != 2 {
		t.Fatalf("owner list: expected 2, got %d (%v)", len(own), err)
	}

	if _, err := svc.Get(ctx, owner, mine.ID); err != nil {
		t.Fatalf("owner get own: %v", err)
	}
	if _, err := svc.Get(ctx, owner, theirs.ID); !errors.Is(err, clinic.ErrAccessDenied) {
		t.Fatalf("expected access denied for foreign pet, got %v", err)
	}
	if _, err := svc.Get(ctx, admin, "nope"); !errors.Is(err, clinic.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, _ := svc.Create(ctx, admin, validInput(owner.UserID, "Rocky"))
	svc.WithClock(func() time.Time { return now.Add(time.Hour) })

	got, err := svc.Update(ctx, admin, p.ID, validInput(other.UserID, "Rocky II"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ClientID != other.UserID || got.Name != "Rocky II" || !got.UpdatedAt.Equal(now.Add(time.Hour)) || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected %+v", got)
	}
}
