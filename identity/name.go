package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// EntityKind distinguishes the two kinds of named sub-entities a profile
// can own.
type EntityKind string

const (
	EntityKindNone   EntityKind = ""
	EntityKindDevice EntityKind = "device"
	EntityKindAgent  EntityKind = "agent"
)

// nodeShape matches a DNS-like node label: letters, digits, hyphens and
// dots, not starting or ending with a hyphen or dot.
var nodeShape = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]*[a-zA-Z0-9])?$`)

// ErrInvalidName is returned by Parse when the input does not match the
// canonical @@<node>/<profile>?/<entity-kind>/<entity-name>? shape.
var ErrInvalidName = errors.New("identity: invalid name")

// Name is the canonical, value-typed identifier for every entity in the
// registry: a node, optionally a profile under it, and optionally a
// device or agent under that profile. Equality is byte-exact on the
// canonical string form.
type Name struct {
	Node       string
	Profile    string
	EntityKind EntityKind
	EntityName string
}

// Parse validates and decomposes a canonical name string.
func Parse(raw string) (Name, error) {
	if !strings.HasPrefix(raw, "@@") {
		return Name{}, fmt.Errorf("%w: %q: missing @@ prefix", ErrInvalidName, raw)
	}
	body := strings.TrimPrefix(raw, "@@")
	if body == "" {
		return Name{}, fmt.Errorf("%w: %q: empty node", ErrInvalidName, raw)
	}

	parts := strings.Split(body, "/")
	n := Name{Node: parts[0]}
	if !nodeShape.MatchString(n.Node) {
		return Name{}, fmt.Errorf("%w: %q: malformed node label", ErrInvalidName, raw)
	}

	switch len(parts) {
	case 1:
		return n, nil
	case 2:
		n.Profile = parts[1]
		if n.Profile == "" {
			return Name{}, fmt.Errorf("%w: %q: empty profile segment", ErrInvalidName, raw)
		}
		return n, nil
	case 3:
		return Name{}, fmt.Errorf("%w: %q: entity-kind segment requires an entity name", ErrInvalidName, raw)
	case 4:
		n.Profile = parts[1]
		kind := EntityKind(parts[2])
		if kind != EntityKindDevice && kind != EntityKindAgent {
			return Name{}, fmt.Errorf("%w: %q: unknown entity kind %q", ErrInvalidName, raw, parts[2])
		}
		if n.Profile == "" || parts[3] == "" {
			return Name{}, fmt.Errorf("%w: %q: empty profile or entity name", ErrInvalidName, raw)
		}
		n.EntityKind = kind
		n.EntityName = parts[3]
		return n, nil
	default:
		return Name{}, fmt.Errorf("%w: %q: too many path segments", ErrInvalidName, raw)
	}
}

// String renders the canonical form.
func (n Name) String() string {
	var b strings.Builder
	b.WriteString("@@")
	b.WriteString(n.Node)
	if n.Profile != "" {
		b.WriteByte('/')
		b.WriteString(n.Profile)
	}
	if n.EntityKind != EntityKindNone {
		b.WriteByte('/')
		b.WriteString(string(n.EntityKind))
		b.WriteByte('/')
		b.WriteString(n.EntityName)
	}
	return b.String()
}

// IsNode reports whether n identifies a bare node (no profile, no entity).
func (n Name) IsNode() bool {
	return n.Profile == "" && n.EntityKind == EntityKindNone
}

// IsProfile reports whether n identifies a profile (node + profile, no
// entity).
func (n Name) IsProfile() bool {
	return n.Profile != "" && n.EntityKind == EntityKindNone
}

// IsDevice reports whether n identifies a device.
func (n Name) IsDevice() bool {
	return n.EntityKind == EntityKindDevice
}

// ProfileName returns the Name of the profile that owns n, stripping any
// entity-kind/entity-name suffix.
func (n Name) ProfileName() Name {
	return Name{Node: n.Node, Profile: n.Profile}
}

// NodeName returns the Name of the bare node that owns n.
func (n Name) NodeName() Name {
	return Name{Node: n.Node}
}

// Equal reports byte-exact equality on the canonical form.
func (n Name) Equal(other Name) bool {
	return n.String() == other.String()
}
