package identity

import "fmt"

// PermissionTier is a totally ordered access level. Registry.InsertProfile
// and Registry.AddDevice store the tier they are given; neither compares a
// device's tier with its profile's, or a profile's with its node's.
type PermissionTier uint8

const (
	PermissionNone PermissionTier = iota
	PermissionReadOnly
	PermissionStandard
	PermissionAdmin
)

func (t PermissionTier) String() string {
	switch t {
	case PermissionNone:
		return "None"
	case PermissionReadOnly:
		return "ReadOnly"
	case PermissionStandard:
		return "Standard"
	case PermissionAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// ParsePermissionTier parses the registry's on-disk tier string.
func ParsePermissionTier(s string) (PermissionTier, error) {
	switch s {
	case "None":
		return PermissionNone, nil
	case "ReadOnly":
		return PermissionReadOnly, nil
	case "Standard":
		return PermissionStandard, nil
	case "Admin":
		return PermissionAdmin, nil
	default:
		return PermissionNone, fmt.Errorf("identity: invalid permission tier %q", s)
	}
}

// AtLeast reports whether t meets or exceeds required.
func (t PermissionTier) AtLeast(required PermissionTier) bool {
	return t >= required
}

// InboxRole mirrors an inbox ACL entry's access level, distinct from
// PermissionTier because an inbox grant is scoped to one inbox rather than
// an identity's global tier.
type InboxRole uint8

const (
	InboxRoleNone InboxRole = iota
	InboxRoleReadOnly
	InboxRoleReadWrite
	InboxRoleAdmin
)

func (r InboxRole) String() string {
	switch r {
	case InboxRoleNone:
		return "None"
	case InboxRoleReadOnly:
		return "ReadOnly"
	case InboxRoleReadWrite:
		return "ReadWrite"
	case InboxRoleAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// ParseInboxRole parses the registry's on-disk inbox role string.
func ParseInboxRole(s string) (InboxRole, error) {
	switch s {
	case "None":
		return InboxRoleNone, nil
	case "ReadOnly":
		return InboxRoleReadOnly, nil
	case "ReadWrite":
		return InboxRoleReadWrite, nil
	case "Admin":
		return InboxRoleAdmin, nil
	default:
		return InboxRoleNone, fmt.Errorf("identity: invalid inbox role %q", s)
	}
}

// AtLeast reports whether r meets or exceeds required.
func (r InboxRole) AtLeast(required InboxRole) bool {
	return r >= required
}
