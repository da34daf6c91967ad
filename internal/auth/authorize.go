package auth

// Allowed reports whether the role appears in an endpoint's declared
// allow-list. Pure; the gate consumes it after authentication.
func Allowed(role Role, allowed []Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// ElevatedRoles is the allow-list for administrative endpoints.
var ElevatedRoles = []Role{RoleAdmin, RoleSuperAdmin}
