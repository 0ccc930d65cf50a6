package clinic

// Capability es lo que un rol puede hacer. Los permisos por rol viven en una
// sola tabla en vez de repartirse por controllers.
type Capability string

const (
	CapAppointmentsReadAll    Capability = "appointments:read_all"
	CapAppointmentsReadOwn    Capability = "appointments:read_assigned"
	CapAppointmentsReadPets   Capability = "appointments:read_own_pets"
	CapAppointmentsCreate     Capability = "appointments:create"
	CapAppointmentsEditAny    Capability = "appointments:edit_any"
	CapAppointmentsEditOwn    Capability = "appointments:edit_assigned"
	CapAppointmentsDelete     Capability = "appointments:delete"
	CapAppointmentsCancelOwn  Capability = "appointments:cancel_own"
	CapAppointmentsChooseVet  Capability = "appointments:choose_veterinarian"
	CapPetsReadAll            Capability = "pets:read_all"
	CapPetsReadOwn            Capability = "pets:read_own"
	CapPetsWrite              Capability = "pets:write"
	CapUsersManage            Capability = "users:manage"
	CapUsersAssignRole        Capability = "users:assign_role"
)

var roleCapabilities = map[RoleName]map[Capability]struct{}{
	RoleAdministrator: {
		CapAppointmentsReadAll:   {},
		CapAppointmentsCreate:    {},
		CapAppointmentsEditAny:   {},
		CapAppointmentsDelete:    {},
		CapAppointmentsChooseVet: {},
		CapPetsReadAll:           {},
		CapPetsWrite:             {},
		CapUsersManage:           {},
		CapUsersAssignRole:       {},
	},
	RoleVeterinarian: {
		CapAppointmentsReadOwn: {},
		CapAppointmentsCreate:  {},
		CapAppointmentsEditOwn: {},
		CapPetsReadAll:         {},
	},
	RoleClient: {
		CapAppointmentsReadPets:  {},
		CapAppointmentsCancelOwn: {},
		CapPetsReadOwn:           {},
	},
}

// Can responde si el rol tiene la capability.
func Can(role RoleName, c Capability) bool {
	caps, ok := roleCapabilities[role]
	if !ok {
		return false
	}
	_, ok = caps[c]
	return ok
}

// Require devuelve AccessDenied si el requester no tiene la capability.
func Require(r Requester, c Capability) error {
	if !Can(r.Role, c) {
		return AccessDenied("role %q lacks %s", r.Role, c)
	}
	return nil
}
