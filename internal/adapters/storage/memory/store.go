package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"vet-appointments/internal/domain/clinic"
)

// ErrIDRequired es un error de programación, no de storage: no se reintenta.
var ErrIDRequired = &clinic.Error{Kind: clinic.KindValidationFailed, Detail: "id required"}

type state struct {
	roles   []clinic.Role
	users   map[string]clinic.User
	clients map[string]clinic.Client
	vets    map[string]clinic.Veterinarian
	pets    map[string]clinic.Pet
	appts   map[string]clinic.Appointment
}

func (s *state) clone() *state {
	out := &state{
		roles:   append([]clinic.Role(nil), s.roles...),
		users:   make(map[string]clinic.User, len(s.users)),
		clients: make(map[string]clinic.Client, len(s.clients)),
		vets:    make(map[string]clinic.Veterinarian, len(s.vets)),
		pets:    make(map[string]clinic.Pet, len(s.pets)),
		appts:   make(map[string]clinic.Appointment, len(s.appts)),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.clients {
		out.clients[k] = v
	}
	for k, v := range s.vets {
		out.vets[k] = v
	}
	for k, v := range s.pets {
		out.pets[k] = v
	}
	for k, v := range s.appts {
		out.appts[k] = v
	}
	return out
}

// Store es el store en memoria (modo dev y tests).
// Cada WithinTx trabaja sobre una copia y solo la publica si fn no falla,
// así un error a mitad de camino no deja escrituras parciales.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	st := &state{
		users:   make(map[string]clinic.User),
		clients: make(map[string]clinic.Client),
		vets:    make(map[string]clinic.Veterinarian),
		pets:    make(map[string]clinic.Pet),
		appts:   make(map[string]clinic.Appointment),
	}
	for i, name := range clinic.KnownRoles {
		st.roles = append(st.roles, clinic.Role{ID: i + 1, Name: name})
	}
	return &Store{st: st}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx clinic.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return clinic.StorageFailure(err, "transaction not started")
	}

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

var _ clinic.Tx = (*tx)(nil)

type tx struct {
	st *state
}

// -------------------------
// Users / roles
// -------------------------

func (t *tx) GetUser(ctx context.Context, id string) (clinic.User, error) {
	u, ok := t.st.users[strings.TrimSpace(id)]
	if !ok {
		return clinic.User{}, clinic.NotFound("user %q not found", id)
	}
	return u, nil
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (clinic.User, error) {
	email = strings.TrimSpace(email)
	for _, u := range t.st.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return clinic.User{}, clinic.NotFound("user with email %q not found", email)
}

func (t *tx) GetUserByExternalID(ctx context.Context, externalID string) (clinic.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID != "" {
		for _, u := range t.st.users {
			if u.ExternalID == externalID {
				return u, nil
			}
		}
	}
	return clinic.User{}, clinic.NotFound("user with external id %q not found", externalID)
}

func (t *tx) ListUsers(ctx context.Context) ([]clinic.User, error) {
	out := make([]clinic.User, 0, len(t.st.users))
	for _, u := range t.st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Email != out[j].Email {
			return out[i].Email < out[j].Email
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) GetUsersByRole(ctx context.Context, role clinic.RoleName) ([]clinic.User, error) {
	out := make([]clinic.User, 0)
	for _, u := range t.st.users {
		if u.Role.Name == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) SaveUser(ctx context.Context, u clinic.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrIDRequired
	}
	role, ok := t.roleByID(u.Role.ID)
	if !ok {
		return clinic.InvalidRole(string(u.Role.Name))
	}
	u.Role = role

	for id, other := range t.st.users {
		if id != u.ID && strings.EqualFold(other.Email, u.Email) {
			return clinic.Conflict("email %q already registered", u.Email)
		}
	}
	t.st.users[u.ID] = u
	return nil
}

// DeleteUser replica el ON DELETE CASCADE de los perfiles.
func (t *tx) DeleteUser(ctx context.Context, id string) error {
	if _, ok := t.st.users[id]; !ok {
		return clinic.NotFound("user %q not found", id)
	}
	if _, ok := t.st.vets[id]; ok {
		if err := t.DeleteVeterinarian(ctx, id); err != nil {
			return err
		}
	}
	delete(t.st.clients, id)
	delete(t.st.users, id)
	return nil
}

func (t *tx) FindRoleByName(ctx context.Context, name string) (clinic.Role, error) {
	name = strings.TrimSpace(name)
	for _, r := range t.st.roles {
		if string(r.Name) == name {
			return r, nil
		}
	}
	return clinic.Role{}, clinic.NotFound("role %q not found", name)
}

func (t *tx) ListRoles(ctx context.Context) ([]clinic.Role, error) {
	return append([]clinic.Role(nil), t.st.roles...), nil
}

func (t *tx) roleByID(id int) (clinic.Role, bool) {
	for _, r := range t.st.roles {
		if r.ID == id {
			return r, true
		}
	}
	return clinic.Role{}, false
}

// -------------------------
// Profiles
// -------------------------

func (t *tx) GetClient(ctx context.Context, userID string) (clinic.Client, error) {
	c, ok := t.st.clients[userID]
	if !ok {
		return clinic.Client{}, clinic.NotFound("client %q not found", userID)
	}
	return c, nil
}

func (t *tx) SaveClient(ctx context.Context, c clinic.Client) error {
	if _, ok := t.st.users[c.UserID]; !ok {
		return clinic.NotFound("user %q not found", c.UserID)
	}
	t.st.clients[c.UserID] = c
	return nil
}

func (t *tx) DeleteClient(ctx context.Context, userID string) error {
	if _, ok := t.st.clients[userID]; !ok {
		return clinic.NotFound("client %q not found", userID)
	}
	delete(t.st.clients, userID)
	return nil
}

func (t *tx) GetVeterinarian(ctx context.Context, userID string) (clinic.Veterinarian, error) {
	v, ok := t.st.vets[userID]
	if !ok {
		return clinic.Veterinarian{}, clinic.NotFound("veterinarian %q not found", userID)
	}
	return v, nil
}

func (t *tx) SaveVeterinarian(ctx context.Context, v clinic.Veterinarian) error {
	if _, ok := t.st.users[v.UserID]; !ok {
		return clinic.NotFound("user %q not found", v.UserID)
	}
	t.st.vets[v.UserID] = v
	return nil
}

// DeleteVeterinarian replica el ON DELETE SET NULL de appointments.veterinarian_id.
func (t *tx) DeleteVeterinarian(ctx context.Context, userID string) error {
	if _, ok := t.st.vets[userID]; !ok {
		return clinic.NotFound("veterinarian %q not found", userID)
	}
	for id, a := range t.st.appts {
		if a.VeterinarianID == userID {
			a.VeterinarianID = ""
			t.st.appts[id] = a
		}
	}
	delete(t.st.vets, userID)
	return nil
}

func (t *tx) GetVeterinariansByRole(ctx context.Context) ([]clinic.Veterinarian, error) {
	out := make([]clinic.Veterinarian, 0)
	for id, v := range t.st.vets {
		u, ok := t.st.users[id]
		if !ok || u.Role.Name != clinic.RoleVeterinarian {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// -------------------------
// Pets
// -------------------------

func (t *tx) GetPet(ctx context.Context, id string) (clinic.Pet, error) {
	p, ok := t.st.pets[strings.TrimSpace(id)]
	if !ok {
		return clinic.Pet{}, clinic.NotFound("pet %q not found", id)
	}
	return p, nil
}

func (t *tx) ListPets(ctx context.Context, filter clinic.PetFilter) ([]clinic.Pet, error) {
	out := make([]clinic.Pet, 0)
	for _, p := range t.st.pets {
		if filter.ClientID != "" && p.ClientID != filter.ClientID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SavePet no valida el dueño: la política de mascotas huérfanas decide eso arriba.
func (t *tx) SavePet(ctx context.Context, p clinic.Pet) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrIDRequired
	}
	t.st.pets[p.ID] = p
	return nil
}

func (t *tx) DeletePet(ctx context.Context, id string) error {
	if _, ok := t.st.pets[id]; !ok {
		return clinic.NotFound("pet %q not found", id)
	}
	for aid, a := range t.st.appts {
		if a.PetID == id {
			delete(t.st.appts, aid)
		}
	}
	delete(t.st.pets, id)
	return nil
}

// -------------------------
// Appointments
// -------------------------

func (t *tx) GetAppointment(ctx context.Context, id string) (clinic.Appointment, error) {
	a, ok := t.st.appts[strings.TrimSpace(id)]
	if !ok {
		return clinic.Appointment{}, clinic.NotFound("appointment %q not found", id)
	}
	return a, nil
}

func (t *tx) QueryAppointments(ctx context.Context, filter clinic.AppointmentFilter) ([]clinic.Appointment, error) {
	out := make([]clinic.Appointment, 0)
	for _, a := range t.st.appts {
		owner := ""
		if p, ok := t.st.pets[a.PetID]; ok {
			owner = p.ClientID
		}
		if filter.Match(a, owner) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateTime.Equal(out[j].DateTime) {
			return out[i].DateTime.After(out[j].DateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveAppointment aplica las mismas restricciones que el esquema Postgres:
// FK a pet y veterinario, e índice único parcial sobre turnos activos.
func (t *tx) SaveAppointment(ctx context.Context, a clinic.Appointment) error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrIDRequired
	}
	if _, ok := t.st.pets[a.PetID]; !ok {
		return clinic.NotFound("pet %q not found", a.PetID)
	}
	if a.Assigned() {
		if _, ok := t.st.vets[a.VeterinarianID]; !ok {
			return clinic.NotFound("veterinarian %q not found", a.VeterinarianID)
		}
	}

	if a.Assigned() && a.State.Active() {
		for id, other := range t.st.appts {
			if id == a.ID || !other.State.Active() {
				continue
			}
			if other.VeterinarianID == a.VeterinarianID && other.DateTime.Equal(a.DateTime) {
				return clinic.Conflict("veterinarian %q already booked at %s", a.VeterinarianID, a.DateTime.Format("2006-01-02 15:04"))
			}
		}
	}

	t.st.appts[a.ID] = a
	return nil
}

func (t *tx) DeleteAppointment(ctx context.Context, id string) error {
	if _, ok := t.st.appts[id]; !ok {
		return clinic.NotFound("appointment %q not found", id)
	}
	delete(t.st.appts, id)
	return nil
}
