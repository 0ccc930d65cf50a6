package staff

import (
	"context"
	"errors"
	"testing"
	"time"

	"vet-appointments/internal/adapters/storage/memory"
	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/ports/auth"
)

var (
	now   = time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC)
	admin = clinic.Requester{UserID: "admin-1", Role: clinic.RoleAdministrator}
)

type fixture struct {
	store *memory.Store
	svc   *Service
}

func newFixture(t *testing.T, policy PetsPolicy) *fixture {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store, nil, policy).WithClock(func() time.Time { return now })
	f := &fixture{store: store, svc: svc}
	f.user(t, admin.UserID, clinic.RoleAdministrator)
	return f
}

func (f *fixture) tx(t *testing.T, fn func(ctx context.Context, tx clinic.Tx) error) {
	t.Helper()
	if err := f.store.WithinTx(context.Background(), fn); err != nil {
		t.Fatalf("tx: %v", err)
	}
}

// user crea el usuario con el perfil que pide su rol.
func (f *fixture) user(t *testing.T, id string, role clinic.RoleName) {
	t.Helper()
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		r, err := tx.FindRoleByName(ctx, string(role))
		if err != nil {
			return err
		}
		if err := tx.SaveUser(ctx, clinic.User{ID: id, Email: id + "@clinic.test", Name: id, Role: r}); err != nil {
			return err
		}
		switch role {
		case clinic.RoleVeterinarian:
			return tx.SaveVeterinarian(ctx, clinic.Veterinarian{UserID: id})
		case clinic.RoleClient:
			return tx.SaveClient(ctx, clinic.Client{UserID: id})
		}
		return nil
	})
}

func (f *fixture) pet(t *testing.T, id, clientID string) {
	t.Helper()
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		return tx.SavePet(ctx, clinic.Pet{ID: id, ClientID: clientID, Name: id, Species: "Perro"})
	})
}

func (f *fixture) appointment(t *testing.T, id, petID, vetID string, at time.Time, st clinic.State) {
	t.Helper()
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		return tx.SaveAppointment(ctx, clinic.Appointment{ID: id, DateTime: at, State: st, PetID: petID, VeterinarianID: vetID})
	})
}

func (f *fixture) get(t *testing.T, id string) clinic.Appointment {
	t.Helper()
	var out clinic.Appointment
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		a, err := tx.GetAppointment(ctx, id)
		out = a
		return err
	})
	return out
}

func (f *fixture) hasVet(t *testing.T, id string) bool {
	t.Helper()
	var ok bool
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		var err error
		ok, err = exists(tx.GetVeterinarian(ctx, id))
		return err
	})
	return ok
}

func (f *fixture) hasClient(t *testing.T, id string) bool {
	t.Helper()
	var ok bool
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		var err error
		ok, err = exists(tx.GetClient(ctx, id))
		return err
	})
	return ok
}

func (f *fixture) role(t *testing.T, id string) clinic.RoleName {
	t.Helper()
	var out clinic.RoleName
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		u, err := tx.GetUser(ctx, id)
		out = u.Role.Name
		return err
	})
	return out
}

func wantKind(t *testing.T, err error, want clinic.Kind) *clinic.Error {
	t.Helper()
	var e *clinic.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected %s, got %v", want, err)
	}
	if e.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, e.Kind, err)
	}
	return e
}

// -------------------------
// Departure
// -------------------------

func TestDeleteUser_VeterinarianWithReplacement(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "vet-2", clinic.RoleVeterinarian)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")
	f.appointment(t, "a-future", "pet-1", "vet-1", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), clinic.StateConfirmed)

	res, err := f.svc.DeleteUser(context.Background(), admin, "vet-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.Departure == nil || res.Departure.Reassigned["a-future"] != "vet-2" {
		t.Fatalf("expected reassignment to vet-2, got %+v", res.Departure)
	}

	a := f.get(t, "a-future")
	if a.VeterinarianID != "vet-2" || a.State != clinic.StateConfirmed {
		t.Fatalf("expected vet-2 + Confirmado, got %+v", a)
	}
	if f.hasVet(t, "vet-1") {
		t.Fatalf("vet-1 profile should be gone")
	}
}

func TestDeleteUser_VeterinarianWithoutReplacement_Cancels(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")
	f.appointment(t, "a-future", "pet-1", "vet-1", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), clinic.StatePending)

	res, err := f.svc.DeleteUser(context.Background(), admin, "vet-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.Departure == nil || len(res.Departure.Cancelled) != 1 {
		t.Fatalf("expected one cancellation, got %+v", res.Departure)
	}

	a := f.get(t, "a-future")
	if a.VeterinarianID != "" || a.State != clinic.StateCancelled {
		t.Fatalf("expected cleared + Cancelado, got %+v", a)
	}
}

func TestDeparture_PastAppointmentsUntouched(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "vet-2", clinic.RoleVeterinarian)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")
	past := now.Add(-24 * time.Hour)
	f.appointment(t, "a-past", "pet-1", "vet-1", past, clinic.StateConfirmed)
	f.appointment(t, "a-now", "pet-1", "vet-1", now, clinic.StateConfirmed)

	res, err := f.svc.AssignRole(context.Background(), "vet-1", string(clinic.RoleAdministrator), admin.UserID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Departure == nil || res.Departure.Total() != 0 {
		t.Fatalf("expected no future appointments touched, got %+v", res.Departure)
	}

	// Con el perfil borrado el store deja la referencia vacía, pero ni el
	// estado ni la fecha cambian.
	for _, id := range []string{"a-past", "a-now"} {
		a := f.get(t, id)
		if a.State != clinic.StateConfirmed || a.VeterinarianID != "" {
			t.Fatalf("%s: unexpected %+v", id, a)
		}
	}
}

func TestDeparture_PerAppointmentReplacement(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "vet-2", clinic.RoleVeterinarian)
	f.user(t, "vet-3", clinic.RoleVeterinarian)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")
	f.pet(t, "pet-2", "client-1")
	f.pet(t, "pet-3", "client-1")

	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	f.appointment(t, "a-t1", "pet-1", "vet-1", t1, clinic.StateConfirmed)
	f.appointment(t, "a-t2", "pet-2", "vet-1", t2, clinic.StateConfirmed)
	// vet-2 ocupado en t1: ahí el reemplazo tiene que ser vet-3.
	f.appointment(t, "busy", "pet-3", "vet-2", t1, clinic.StateConfirmed)

	res, err := f.svc.DeleteUser(context.Background(), admin, "vet-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := res.Departure.Reassigned["a-t1"]; got != "vet-3" {
		t.Fatalf("a-t1: expected vet-3, got %q", got)
	}
	if got := res.Departure.Reassigned["a-t2"]; got != "vet-2" {
		t.Fatalf("a-t2: expected vet-2, got %q", got)
	}
}

func TestDeparture_EveryCandidateBusy_Cancels(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "vet-2", clinic.RoleVeterinarian)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")
	f.pet(t, "pet-2", "client-1")

	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f.appointment(t, "a-t1", "pet-1", "vet-1", t1, clinic.StateConfirmed)
	f.appointment(t, "busy", "pet-2", "vet-2", t1, clinic.StateConfirmed)

	res, err := f.svc.DeleteUser(context.Background(), admin, "vet-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Departure.Cancelled) != 1 || res.Departure.Cancelled[0] != "a-t1" {
		t.Fatalf("expected a-t1 cancelled, got %+v", res.Departure)
	}
	if a := f.get(t, "busy"); a.VeterinarianID != "vet-2" || a.State != clinic.StateConfirmed {
		t.Fatalf("busy appointment changed: %+v", a)
	}
}

func TestDeparture_IgnoresProfilesWithoutTheRole(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")
	f.appointment(t, "a-future", "pet-1", "vet-1", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), clinic.StateConfirmed)

	// Perfil de veterinario colgado de un usuario que hoy es Cliente.
	f.user(t, "stale", clinic.RoleClient)
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		return tx.SaveVeterinarian(ctx, clinic.Veterinarian{UserID: "stale"})
	})

	res, err := f.svc.DeleteUser(context.Background(), admin, "vet-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Departure.Cancelled) != 1 {
		t.Fatalf("expected cancellation (stale profile is not a candidate), got %+v", res.Departure)
	}
}

func TestRetireVeterinarian(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "stale", clinic.RoleClient)
	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		return tx.SaveVeterinarian(ctx, clinic.Veterinarian{UserID: "stale"})
	})
	ctx := context.Background()

	_, err := f.svc.RetireVeterinarian(ctx, admin, "vet-1")
	wantKind(t, err, clinic.KindValidationFailed)

	_, err = f.svc.RetireVeterinarian(ctx, clinic.Requester{UserID: "vet-1", Role: clinic.RoleVeterinarian}, "stale")
	wantKind(t, err, clinic.KindAccessDenied)

	if _, err := f.svc.RetireVeterinarian(ctx, admin, "stale"); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if f.hasVet(t, "stale") {
		t.Fatalf("stale profile should be gone")
	}
	if !f.hasVet(t, "vet-1") {
		t.Fatalf("vet-1 must remain")
	}
}

// -------------------------
// AssignRole
// -------------------------

func TestAssignRole_SelfModificationDenied(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)

	for _, id := range []string{admin.UserID, "vet-1"} {
		_, err := f.svc.AssignRole(context.Background(), id, string(clinic.RoleVeterinarian), id)
		wantKind(t, err, clinic.KindSelfModificationDenied)
	}
	if f.role(t, admin.UserID) != clinic.RoleAdministrator {
		t.Fatalf("admin role must be unchanged")
	}
}

func TestAssignRole_InvalidRole(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "client-1", clinic.RoleClient)

	for _, name := range []string{"Superusuario", "", "cliente"} {
		_, err := f.svc.AssignRole(context.Background(), "client-1", name, admin.UserID)
		wantKind(t, err, clinic.KindInvalidRole)
	}
}

func TestAssignRole_RequesterMustBeAdministrator(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "client-1", clinic.RoleClient)

	_, err := f.svc.AssignRole(context.Background(), "client-1", string(clinic.RoleVeterinarian), "vet-1")
	wantKind(t, err, clinic.KindAccessDenied)

	_, err = f.svc.AssignRole(context.Background(), "client-1", string(clinic.RoleVeterinarian), "ghost")
	wantKind(t, err, clinic.KindAccessDenied)
}

func TestAssignRole_UnknownUser(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	_, err := f.svc.AssignRole(context.Background(), "ghost", string(clinic.RoleClient), admin.UserID)
	wantKind(t, err, clinic.KindNotFound)
}

func TestAssignRole_Transitions(t *testing.T) {
	cases := []struct {
		name       string
		from       clinic.RoleName
		to         clinic.RoleName
		wantVet    bool
		wantClient bool
	}{
		{"client to vet", clinic.RoleClient, clinic.RoleVeterinarian, true, false},
		{"client to admin", clinic.RoleClient, clinic.RoleAdministrator, false, false},
		{"vet to client", clinic.RoleVeterinarian, clinic.RoleClient, false, true},
		{"vet to admin", clinic.RoleVeterinarian, clinic.RoleAdministrator, false, false},
		{"admin to vet", clinic.RoleAdministrator, clinic.RoleVeterinarian, true, false},
		{"admin to client", clinic.RoleAdministrator, clinic.RoleClient, false, true},
		{"same role", clinic.RoleClient, clinic.RoleClient, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, PetsPolicyBlock)
			f.user(t, "u-1", tc.from)

			res, err := f.svc.AssignRole(context.Background(), "u-1", string(tc.to), admin.UserID)
			if err != nil {
				t.Fatalf("assign: %v", err)
			}
			if res.From != tc.from || res.To != tc.to {
				t.Fatalf("unexpected change %+v", res)
			}
			if f.role(t, "u-1") != tc.to {
				t.Fatalf("role not persisted")
			}
			if got := f.hasVet(t, "u-1"); got != tc.wantVet {
				t.Fatalf("vet profile: expected %v, got %v", tc.wantVet, got)
			}
			if got := f.hasClient(t, "u-1"); got != tc.wantClient {
				t.Fatalf("client profile: expected %v, got %v", tc.wantClient, got)
			}
			if (tc.from == clinic.RoleVeterinarian) != (res.Departure != nil) {
				t.Fatalf("departure expected only when leaving Veterinario, got %+v", res.Departure)
			}
		})
	}
}

func TestAssignRole_VetToClient_RunsDepartureInSameTx(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	f.user(t, "vet-2", clinic.RoleVeterinarian)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")
	f.appointment(t, "a-future", "pet-1", "vet-1", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), clinic.StateConfirmed)

	res, err := f.svc.AssignRole(context.Background(), "vet-1", string(clinic.RoleClient), admin.UserID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Departure.Reassigned["a-future"] != "vet-2" {
		t.Fatalf("expected reassignment, got %+v", res.Departure)
	}
	if f.get(t, "a-future").VeterinarianID != "vet-2" {
		t.Fatalf("appointment not reassigned")
	}
}

func TestAssignRole_ClientWithPets_BlockPolicy_RollsBack(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")

	_, err := f.svc.AssignRole(context.Background(), "client-1", string(clinic.RoleVeterinarian), admin.UserID)
	e := wantKind(t, err, clinic.KindValidationFailed)
	if len(e.Fields) != 1 || e.Fields[0].Tag != "has_pets" {
		t.Fatalf("unexpected fields %+v", e.Fields)
	}

	// Nada quedó a medias.
	if f.role(t, "client-1") != clinic.RoleClient || !f.hasClient(t, "client-1") || f.hasVet(t, "client-1") {
		t.Fatalf("transaction leaked partial writes")
	}
}

func TestAssignRole_ClientWithPets_OrphanPolicy(t *testing.T) {
	f := newFixture(t, PetsPolicyOrphan)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")

	res, err := f.svc.AssignRole(context.Background(), "client-1", string(clinic.RoleVeterinarian), admin.UserID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !res.ClientRemoved || res.OrphanedPets != 1 {
		t.Fatalf("expected one orphaned pet, got %+v", res)
	}

	f.tx(t, func(ctx context.Context, tx clinic.Tx) error {
		p, err := tx.GetPet(ctx, "pet-1")
		if err != nil {
			return err
		}
		if p.ClientID != "client-1" {
			t.Errorf("pet owner reference must be kept, got %q", p.ClientID)
		}
		return nil
	})
}

// -------------------------
// Users
// -------------------------

func TestCreateUser_ValidatesEverything(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)

	_, err := f.svc.CreateUser(context.Background(), admin, NewUserInput{
		ProfileInput: ProfileInput{Email: "not-an-email", Phone: "012345678901234567890123"},
		Role:         "Dueño",
	})
	e := wantKind(t, err, clinic.KindValidationFailed)

	want := map[string]bool{"email": false, "name": false, "phone": false, "address": false, "role": false}
	for _, fe := range e.Fields {
		if _, ok := want[fe.Field]; ok {
			want[fe.Field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("missing field error for %s in %+v", field, e.Fields)
		}
	}
}

func TestCreateUser_ProfileAndUniqueEmail(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	ctx := context.Background()
	in := NewUserInput{
		ProfileInput: ProfileInput{Email: "ana@clinic.test", Name: "Ana", Phone: "1122334455", Address: "Calle 1"},
		Role:         string(clinic.RoleVeterinarian),
	}

	u, err := f.svc.CreateUser(ctx, admin, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !f.hasVet(t, u.ID) || f.hasClient(t, u.ID) {
		t.Fatalf("expected only a veterinarian profile")
	}

	_, err = f.svc.CreateUser(ctx, admin, in)
	e := wantKind(t, err, clinic.KindValidationFailed)
	if e.Fields[0].Field != "email" || e.Fields[0].Tag != "unique" {
		t.Fatalf("expected email unique, got %+v", e.Fields)
	}

	_, err = f.svc.CreateUser(ctx, clinic.Requester{UserID: u.ID, Role: clinic.RoleVeterinarian}, in)
	wantKind(t, err, clinic.KindAccessDenied)
}

func TestUpdateUser_KeepsRole(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "client-1", clinic.RoleClient)

	u, err := f.svc.UpdateUser(context.Background(), admin, "client-1", ProfileInput{
		Email: "nuevo@clinic.test", Name: "Nuevo", Phone: "123", Address: "Calle 2",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if u.Email != "nuevo@clinic.test" || u.Role.Name != clinic.RoleClient {
		t.Fatalf("unexpected %+v", u)
	}

	// Su propio email no cuenta como duplicado.
	if _, err := f.svc.UpdateUser(context.Background(), admin, "client-1", ProfileInput{
		Email: "nuevo@clinic.test", Name: "Nuevo", Phone: "123", Address: "Calle 3",
	}); err != nil {
		t.Fatalf("update same email: %v", err)
	}
}

func TestDeleteUser_Rules(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "client-1", clinic.RoleClient)
	f.pet(t, "pet-1", "client-1")
	ctx := context.Background()

	_, err := f.svc.DeleteUser(ctx, admin, admin.UserID)
	wantKind(t, err, clinic.KindSelfModificationDenied)

	_, err = f.svc.DeleteUser(ctx, admin, "ghost")
	wantKind(t, err, clinic.KindNotFound)

	_, err = f.svc.DeleteUser(ctx, admin, "client-1")
	wantKind(t, err, clinic.KindValidationFailed)

	f.svc.policy = PetsPolicyOrphan
	res, err := f.svc.DeleteUser(ctx, admin, "client-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.OrphanedPets != 1 {
		t.Fatalf("expected 1 orphaned pet, got %d", res.OrphanedPets)
	}
}

func TestListUsers_OrderedByEmail(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	f.user(t, "zeta", clinic.RoleClient)
	f.user(t, "beta", clinic.RoleVeterinarian)

	items, err := f.svc.ListUsers(context.Background(), admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"admin-1", "beta", "zeta"}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("item %d: expected %s, got %s", i, id, items[i].ID)
		}
	}
}

// -------------------------
// Sign-in
// -------------------------

func TestResolve_ProvisionsClientOnFirstSignIn(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	ctx := context.Background()

	req, err := f.svc.Resolve(ctx, auth.Claims{UserID: "google-123", Email: "maria.perez@mail.test"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if req.Role != clinic.RoleClient {
		t.Fatalf("expected Cliente, got %s", req.Role)
	}

	u, err := f.svc.GetUser(ctx, req, req.UserID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Name != "maria.perez" || u.Phone != "N/A" || u.Address != "N/A" {
		t.Fatalf("unexpected provisioned user %+v", u)
	}
	if !f.hasClient(t, u.ID) {
		t.Fatalf("expected client profile")
	}

	// Segundo ingreso: mismo usuario, sin duplicar.
	again, err := f.svc.Resolve(ctx, auth.Claims{UserID: "google-123", Email: "maria.perez@mail.test"})
	if err != nil || again.UserID != req.UserID {
		t.Fatalf("expected same user, got %+v (%v)", again, err)
	}
}

func TestResolve_LinksUserCreatedByAdministrator(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	ctx := context.Background()

	u, err := f.svc.CreateUser(ctx, admin, NewUserInput{
		ProfileInput: ProfileInput{Email: "vet@clinic.test", Name: "Vet", Phone: "1", Address: "x"},
		Role:         string(clinic.RoleVeterinarian),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req, err := f.svc.Resolve(ctx, auth.Claims{UserID: "google-vet", Email: "vet@clinic.test"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if req.UserID != u.ID || req.Role != clinic.RoleVeterinarian {
		t.Fatalf("expected link to %s, got %+v", u.ID, req)
	}
}

func TestResolve_LinkedEmailIsNotTakenOver(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	ctx := context.Background()
	email := admin.UserID + "@clinic.test"

	first, err := f.svc.Resolve(ctx, auth.Claims{UserID: "google-A", Email: email})
	if err != nil || first != admin {
		t.Fatalf("expected link to admin, got %+v (%v)", first, err)
	}

	// otra identidad con el mismo email no se queda con la cuenta
	_, err = f.svc.Resolve(ctx, auth.Claims{UserID: "google-B", Email: email})
	wantKind(t, err, clinic.KindAccessDenied)

	again, err := f.svc.Resolve(ctx, auth.Claims{UserID: "google-A"})
	if err != nil || again != admin {
		t.Fatalf("original identity should still sign in, got %+v (%v)", again, err)
	}
}

func TestCreateUser_LeavesIdentityUnlinked(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	u, err := f.svc.CreateUser(context.Background(), admin, NewUserInput{
		ProfileInput: ProfileInput{Email: "new@clinic.test", Name: "New", Phone: "1", Address: "x"},
		Role:         string(clinic.RoleClient),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ExternalID != "" {
		t.Fatalf("expected unlinked user, got external id %q", u.ExternalID)
	}
}

func TestResolve_UnknownWithoutEmail(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	_, err := f.svc.Resolve(context.Background(), auth.Claims{UserID: "nobody"})
	wantKind(t, err, clinic.KindNotFound)

	req, err := f.svc.Resolve(context.Background(), auth.Claims{UserID: admin.UserID})
	if err != nil || req != admin {
		t.Fatalf("expected admin, got %+v (%v)", req, err)
	}
}

func TestParsePetsPolicy(t *testing.T) {
	for in, want := range map[string]PetsPolicy{"": PetsPolicyBlock, "block": PetsPolicyBlock, " Orphan ": PetsPolicyOrphan} {
		got, err := ParsePetsPolicy(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParsePetsPolicy("delete"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestBootstrapAdministrator(t *testing.T) {
	f := newFixture(t, PetsPolicyBlock)
	ctx := context.Background()

	u, created, err := f.svc.BootstrapAdministrator(ctx, " root@clinic.test ")
	if err != nil || !created {
		t.Fatalf("expected new administrator, got created=%v err=%v", created, err)
	}
	if !u.Is(clinic.RoleAdministrator) || u.Name != "root" || u.Email != "root@clinic.test" || u.ExternalID != "" {
		t.Fatalf("unexpected user %+v", u)
	}

	again, created, err := f.svc.BootstrapAdministrator(ctx, "root@clinic.test")
	if err != nil || created || again.ID != u.ID {
		t.Fatalf("expected idempotent bootstrap, got %+v created=%v err=%v", again, created, err)
	}

	// un veterinario existente se promueve y pierde el perfil
	f.user(t, "vet-1", clinic.RoleVeterinarian)
	promoted, created, err := f.svc.BootstrapAdministrator(ctx, "vet-1@clinic.test")
	if err != nil || !created || promoted.ID != "vet-1" {
		t.Fatalf("expected promotion, got %+v created=%v err=%v", promoted, created, err)
	}
	if f.role(t, "vet-1") != clinic.RoleAdministrator || f.hasVet(t, "vet-1") {
		t.Fatalf("expected vet-1 administrator without vet profile")
	}

	_, _, err = f.svc.BootstrapAdministrator(ctx, "not-an-email")
	wantKind(t, err, clinic.KindValidationFailed)
}
