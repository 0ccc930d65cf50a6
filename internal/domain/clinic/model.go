package clinic

import (
	"strings"
	"time"
)

// RoleName es la enumeración fija de roles. Los nombres son los mismos que
// se guardan en la tabla roles.
type RoleName string

const (
	RoleAdministrator RoleName = "Administrador"
	RoleVeterinarian  RoleName = "Veterinario"
	RoleClient        RoleName = "Cliente"
)

// KnownRoles en el orden en que se siembran.
var KnownRoles = []RoleName{RoleAdministrator, RoleVeterinarian, RoleClient}

// ParseRoleName acepta el nombre exacto del rol (ignora espacios alrededor).
func ParseRoleName(s string) (RoleName, bool) {
	s = strings.TrimSpace(s)
	for _, r := range KnownRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

type Role struct {
	ID   int
	Name RoleName
}

// User es la identidad. El perfil adjunto (Client o Veterinarian) depende de Role.
type User struct {
	ID         string
	ExternalID string // id del proveedor de identidad (p.ej. Google)

	Email   string
	Name    string
	Phone   string
	Address string

	Role Role

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) Is(role RoleName) bool {
	return u.Role.Name == role
}

// Client es el perfil de dueño de mascotas, 1:1 con User.
type Client struct {
	UserID string
}

// Veterinarian es el perfil profesional, 1:1 con User.
type Veterinarian struct {
	UserID string
}

type Pet struct {
	ID       string
	ClientID string // user id del dueño

	Name      string
	Species   string
	Breed     string
	BirthDate time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// State del turno. Cancelled es terminal.
type State string

const (
	StatePending   State = "Pendiente"
	StateConfirmed State = "Confirmado"
	StateCancelled State = "Cancelado"
)

// Active: todo lo que no está cancelado cuenta para conflictos.
func (s State) Active() bool {
	return s != StateCancelled
}

// CanTransitionTo implementa Pending -> Confirmed -> Cancelled y Pending -> Cancelled.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StatePending:
		return next == StateConfirmed || next == StateCancelled
	case StateConfirmed:
		return next == StateCancelled
	default:
		return false
	}
}

type Appointment struct {
	ID       string
	DateTime time.Time // precisión de minuto
	State    State

	PetID          string
	VeterinarianID string // "" = sin asignar

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) Assigned() bool {
	return a.VeterinarianID != ""
}

// SlotTime normaliza un instante al formato de turno: minuto exacto, UTC.
func SlotTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// Requester reemplaza el "usuario actual" ambiente: cada operación recibe
// explícitamente quién la pide.
type Requester struct {
	UserID string
	Role   RoleName
}

func (r Requester) Is(role RoleName) bool {
	return r.Role == role
}

// RequesterOf arma el Requester a partir del usuario persistido.
func RequesterOf(u User) Requester {
	return Requester{UserID: u.ID, Role: u.Role.Name}
}
