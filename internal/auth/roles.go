package auth

type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleDoctor    Role = "Doctor"
	RoleNurse     Role = "Nurse"
	RoleFrontDesk Role = "Front Desk"
)

const (
	PermManageUsers        = "manage users"
	PermManagePatients     = "manage patients"
	PermManageAppointments = "manage appointments"
	PermManageEncounters   = "manage encounters"
	PermManageDiscussions  = "manage discussions"
)

// AllRoles is ordered the way role pickers present them.
var AllRoles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleFrontDesk}

var AllPermissions = []string{
	PermManageUsers,
	PermManagePatients,
	PermManageAppointments,
	PermManageEncounters,
	PermManageDiscussions,
}

var rolePermissions = map[Role][]string{
	RoleAdmin:     AllPermissions,
	RoleDoctor:    {PermManagePatients, PermManageAppointments, PermManageEncounters, PermManageDiscussions},
	RoleNurse:     {PermManagePatients, PermManageEncounters, PermManageDiscussions},
	RoleFrontDesk: {PermManagePatients, PermManageAppointments},
}

func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// PermissionsFor returns a copy of the role's permissions; unknown roles get none.
func PermissionsFor(role Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

func RoleStrings() []string {
	out := make([]string, 0, len(AllRoles))
	for _, r := range AllRoles {
		out = append(out, string(r))
	}
	return out
}
