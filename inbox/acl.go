package inbox

import "github.com/shinkai-net/shinkai-node/identity"

// aclEntry pairs a granted identity's canonical name with its inbox role.
// GrantACL does not store this struct: each grant is persisted as the
// role's string under an acl:<inbox>:<name> key.
type aclEntry struct {
	Name string             `json:"name"`
	Role identity.InboxRole `json:"role"`
}

// effectiveRole walks an inbox ACL device -> profile -> node and returns
// the role of the first entry found, mirroring identity.EffectiveTier's
// walk but over per-inbox InboxRole grants rather than a
// global PermissionTier.
func effectiveRole(acl map[string]identity.InboxRole, name identity.Name) identity.InboxRole {
	if name.IsDevice() {
		if role, ok := acl[name.String()]; ok {
			return role
		}
		if role, ok := acl[name.ProfileName().String()]; ok {
			return role
		}
		if role, ok := acl[name.NodeName().String()]; ok {
			return role
		}
		return identity.InboxRoleNone
	}
	if name.IsProfile() {
		if role, ok := acl[name.String()]; ok {
			return role
		}
		if role, ok := acl[name.NodeName().String()]; ok {
			return role
		}
		return identity.InboxRoleNone
	}
	if role, ok := acl[name.String()]; ok {
		return role
	}
	return identity.InboxRoleNone
}

// hasRole reports whether name's effective role in acl meets required.
func hasRole(acl map[string]identity.InboxRole, name identity.Name, required identity.InboxRole) bool {
	return effectiveRole(acl, name).AtLeast(required)
}
