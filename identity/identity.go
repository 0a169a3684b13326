package identity

// IdentityType distinguishes a node-wide (Global) StandardIdentity from one
// scoped to a single profile.
type IdentityType uint8

const (
	IdentityTypeGlobal IdentityType = iota
	IdentityTypeProfile
)

func (t IdentityType) String() string {
	if t == IdentityTypeGlobal {
		return "Global"
	}
	return "Profile"
}

// ParseIdentityType parses the registry's on-disk identity-type string.
func ParseIdentityType(s string) (IdentityType, error) {
	switch s {
	case "Global":
		return IdentityTypeGlobal, nil
	case "Profile":
		return IdentityTypeProfile, nil
	default:
		return IdentityTypeGlobal, errNotFound("identity_type", s)
	}
}

func errNotFound(field, value string) error {
	return &invalidFieldError{field: field, value: value}
}

type invalidFieldError struct {
	field string
	value string
}

func (e *invalidFieldError) Error() string {
	return "identity: invalid " + e.field + " " + e.value
}

// StandardIdentity represents a node or a profile under it: full name,
// optional network address, node-level encryption and signature keys,
// optional profile-level keys, identity type and permission tier.
type StandardIdentity struct {
	FullName         Name
	Address          string // optional network address, empty if unknown
	NodeEncryptPK    [32]byte
	NodeSignPK       [32]byte
	ProfileEncryptPK *[32]byte // nil when this identity is node-level only
	ProfileSignPK    *[32]byte
	IdentityType     IdentityType
	Permission       PermissionTier
}

// DeviceIdentity represents a credential scoped to a profile: it inherits
// its node and profile keys and carries its own device-specific keypair.
type DeviceIdentity struct {
	FullName         Name
	NodeEncryptPK    [32]byte
	NodeSignPK       [32]byte
	ProfileEncryptPK [32]byte
	ProfileSignPK    [32]byte
	DeviceEncryptPK  [32]byte
	DeviceSignPK     [32]byte
	Permission       PermissionTier
}

// LLMProviderIdentity represents an external model-serving endpoint: the
// core treats its descriptor as opaque.
type LLMProviderIdentity struct {
	FullName Name
	Provider string // opaque descriptor, interpreted by the LLM driver
}

// Kind distinguishes the concrete type held by an Identity.
type Kind uint8

const (
	KindStandard Kind = iota
	KindDevice
	KindLLMProvider
)

// Identity is a tagged variant: a StandardIdentity, a
// DeviceIdentity, or an LLMProviderIdentity. Exactly one of the Standard/
// Device/LLMProvider fields is populated, selected by Kind.
type Identity struct {
	Kind        Kind
	Standard    *StandardIdentity
	Device      *DeviceIdentity
	LLMProvider *LLMProviderIdentity
}

// Name returns the full canonical name of whichever variant is set.
func (id Identity) Name() Name {
	switch id.Kind {
	case KindStandard:
		return id.Standard.FullName
	case KindDevice:
		return id.Device.FullName
	case KindLLMProvider:
		return id.LLMProvider.FullName
	default:
		return Name{}
	}
}

// Permission returns the permission tier of whichever variant is set.
// LLMProviderIdentity has no tier of its own and reports PermissionNone.
func (id Identity) Permission() PermissionTier {
	switch id.Kind {
	case KindStandard:
		return id.Standard.Permission
	case KindDevice:
		return id.Device.Permission
	default:
		return PermissionNone
	}
}

// FromStandard wraps a StandardIdentity as an Identity.
func FromStandard(s *StandardIdentity) Identity {
	return Identity{Kind: KindStandard, Standard: s}
}

// FromDevice wraps a DeviceIdentity as an Identity.
func FromDevice(d *DeviceIdentity) Identity {
	return Identity{Kind: KindDevice, Device: d}
}

// FromLLMProvider wraps an LLMProviderIdentity as an Identity.
func FromLLMProvider(p *LLMProviderIdentity) Identity {
	return Identity{Kind: KindLLMProvider, LLMProvider: p}
}
