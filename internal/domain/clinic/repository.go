package clinic

import (
	"context"
	"time"
)

// Store es la abstracción de persistencia. Cada operación pública del core
// corre exactamente un WithinTx: o confirma todo o nada.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx expone lecturas y escrituras dentro de una transacción.
// Los métodos Get* devuelven un *Error de KindNotFound cuando no existe la entidad.
type Tx interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	GetUsersByRole(ctx context.Context, role RoleName) ([]User, error)
	SaveUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id string) error

	FindRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)

	GetClient(ctx context.Context, userID string) (Client, error)
	SaveClient(ctx context.Context, c Client) error
	DeleteClient(ctx context.Context, userID string) error

	GetVeterinarian(ctx context.Context, userID string) (Veterinarian, error)
	SaveVeterinarian(ctx context.Context, v Veterinarian) error
	// DeleteVeterinarian limpia la referencia en los turnos que aún lo apunten.
	DeleteVeterinarian(ctx context.Context, userID string) error
	// GetVeterinariansByRole devuelve los perfiles cuyo usuario tiene hoy el rol
	// Veterinario, ordenados por user id ascendente.
	GetVeterinariansByRole(ctx context.Context) ([]Veterinarian, error)

	GetPet(ctx context.Context, id string) (Pet, error)
	ListPets(ctx context.Context, filter PetFilter) ([]Pet, error)
	SavePet(ctx context.Context, p Pet) error
	// DeletePet borra también sus turnos.
	DeletePet(ctx context.Context, id string) error

	GetAppointment(ctx context.Context, id string) (Appointment, error)
	QueryAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error)
	// SaveAppointment devuelve KindConflict si rompe la unicidad
	// (veterinario, instante) entre turnos activos.
	SaveAppointment(ctx context.Context, a Appointment) error
	DeleteAppointment(ctx context.Context, id string) error
}

type PetFilter struct {
	ClientID string
}

// AppointmentFilter: campos vacíos no filtran. Orden: DateTime desc, luego ID.
type AppointmentFilter struct {
	VeterinarianID string
	PetID          string
	ClientID       string

	At    *time.Time // instante exacto
	After *time.Time // estrictamente posterior

	ActiveOnly bool
	ExcludeID  string
}

// Match se usa en el store en memoria y en tests.
func (f AppointmentFilter) Match(a Appointment, petOwner string) bool {
	if f.VeterinarianID != "" && a.VeterinarianID != f.VeterinarianID {
		return false
	}
	if f.PetID != "" && a.PetID != f.PetID {
		return false
	}
	if f.ClientID != "" && petOwner != f.ClientID {
		return false
	}
	if f.At != nil && !a.DateTime.Equal(*f.At) {
		return false
	}
	if f.After != nil && !a.DateTime.After(*f.After) {
		return false
	}
	if f.ActiveOnly && !a.State.Active() {
		return false
	}
	if f.ExcludeID != "" && a.ID == f.ExcludeID {
		return false
	}
	return true
}
