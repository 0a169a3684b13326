package identity

import (
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/apierr"
	"github.com/shinkai-net/shinkai-node/kv"
)

const family = "identity"

// Key prefixes for the persisted identity entries.
const (
	prefixIdentityKey    = "identity_key_of_"
	prefixEncryptionKey  = "encryption_key_of_"
	prefixIdentityType   = "identity_type_of_"
	prefixPermissions    = "permissions_of_"
	prefixDeviceIDKey    = "device_identity_key_of_"
	prefixDeviceEncKey   = "device_encryption_key_of_"
	prefixDevicePerms    = "device_permissions_of_"
	prefixReverseByIDKey = "profile_from_identity_key_"
)

// Registry persists and resolves identities through a kv.Store. It is the
// single entry point for identity operations.
type Registry struct {
	store kv.Store
}

// New wraps store as an identity Registry.
func New(store kv.Store) *Registry {
	return &Registry{store: store}
}

func hexKey(pk [32]byte) string {
	return hex.EncodeToString(pk[:])
}

func parseHexKey(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, apierr.New(apierr.KindDecodeError, "identity: malformed public key hex")
	}
	copy(out[:], raw)
	return out, nil
}

// InsertProfile persists a StandardIdentity (node- or profile-level).
// Fails with AlreadyExists if any of its four keys already exist under the
// identity's name.
func (r *Registry) InsertProfile(id *StandardIdentity) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "InsertProfile",
		"package":  "identity",
		"name":     id.FullName.String(),
	})

	name := id.FullName.String()
	for _, prefix := range []string{prefixIdentityKey, prefixEncryptionKey, prefixIdentityType, prefixPermissions} {
		exists, err := r.store.Has(family, []byte(prefix+name))
		if err != nil {
			return err
		}
		if exists {
			return apierr.New(apierr.KindAlreadyExists, fmt.Sprintf("identity: profile %s already exists", name))
		}
	}

	signPK, encryptPK := id.NodeSignPK, id.NodeEncryptPK
	if id.IdentityType == IdentityTypeProfile {
		if id.ProfileSignPK == nil || id.ProfileEncryptPK == nil {
			return apierr.New(apierr.KindDecodeError, "identity: profile-level identity missing profile keys")
		}
		signPK, encryptPK = *id.ProfileSignPK, *id.ProfileEncryptPK
	}

	ops := []kv.WriteOp{
		kv.Put(family, []byte(prefixIdentityKey+name), []byte(hexKey(signPK))),
		kv.Put(family, []byte(prefixEncryptionKey+name), []byte(hexKey(encryptPK))),
		kv.Put(family, []byte(prefixIdentityType+name), []byte(id.IdentityType.String())),
		kv.Put(family, []byte(prefixPermissions+name), []byte(id.Permission.String())),
		kv.Put(family, []byte(prefixReverseByIDKey+hexKey(signPK)), []byte(name)),
	}
	if err := r.store.Batch(ops...); err != nil {
		return err
	}
	logger.Info("profile inserted")
	return nil
}

// AddDevice persists a DeviceIdentity. Fails with NotFound if the parent
// profile is absent.
func (r *Registry) AddDevice(device *DeviceIdentity) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "AddDevice",
		"package":  "identity",
		"name":     device.FullName.String(),
	})

	profileName := device.FullName.ProfileName().String()
	exists, err := r.store.Has(family, []byte(prefixIdentityKey+profileName))
	if err != nil {
		return err
	}
	if !exists {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("identity: parent profile %s not found", profileName))
	}

	name := device.FullName.String()
	ops := []kv.WriteOp{
		kv.Put(family, []byte(prefixDeviceIDKey+name), []byte(hexKey(device.DeviceSignPK))),
		kv.Put(family, []byte(prefixDeviceEncKey+name), []byte(hexKey(device.DeviceEncryptPK))),
		kv.Put(family, []byte(prefixDevicePerms+name), []byte(device.Permission.String())),
		kv.Put(family, []byte(prefixReverseByIDKey+hexKey(device.DeviceSignPK)), []byte(name)),
	}
	if err := r.store.Batch(ops...); err != nil {
		return err
	}
	logger.Info("device added")
	return nil
}

// RemoveProfile deletes a profile's four entries atomically. Device
// entries and inbox ACLs referencing it are left intact (operator
// responsibility).
func (r *Registry) RemoveProfile(name Name) error {
	key := name.String()
	for _, prefix := range []string{prefixIdentityKey, prefixEncryptionKey, prefixIdentityType, prefixPermissions} {
		exists, err := r.store.Has(family, []byte(prefix+key))
		if err != nil {
			return err
		}
		if !exists {
			return apierr.New(apierr.KindNotFound, fmt.Sprintf("identity: profile %s not found", key))
		}
	}
	return r.store.Batch(
		kv.Delete(family, []byte(prefixIdentityKey+key)),
		kv.Delete(family, []byte(prefixEncryptionKey+key)),
		kv.Delete(family, []byte(prefixIdentityType+key)),
		kv.Delete(family, []byte(prefixPermissions+key)),
	)
}

func (r *Registry) getString(prefix, key string) (string, error) {
	value, err := r.store.Get(family, []byte(prefix+key))
	if err == kv.ErrNotFound {
		return "", apierr.New(apierr.KindNotFound, fmt.Sprintf("identity: %s%s not found", prefix, key))
	}
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Resolve reconstructs a full Identity from a Name by prefix lookups.
func (r *Registry) Resolve(name Name) (Identity, error) {
	if name.IsDevice() {
		return r.resolveDevice(name)
	}
	return r.resolveStandard(name)
}

func (r *Registry) resolveStandard(name Name) (Identity, error) {
	key := name.String()

	typeStr, err := r.getString(prefixIdentityType, key)
	if err != nil {
		return Identity{}, err
	}
	idType, err := ParseIdentityType(typeStr)
	if err != nil {
		return Identity{}, apierr.Wrap(apierr.KindDecodeError, "identity: invalid identity_type", err)
	}

	permStr, err := r.getString(prefixPermissions, key)
	if err != nil {
		return Identity{}, err
	}
	perm, err := ParsePermissionTier(permStr)
	if err != nil {
		return Identity{}, apierr.Wrap(apierr.KindDecodeError, "identity: invalid permission", err)
	}

	signHex, err := r.getString(prefixIdentityKey, key)
	if err != nil {
		return Identity{}, err
	}
	signPK, err := parseHexKey(signHex)
	if err != nil {
		return Identity{}, err
	}
	encHex, err := r.getString(prefixEncryptionKey, key)
	if err != nil {
		return Identity{}, err
	}
	encryptPK, err := parseHexKey(encHex)
	if err != nil {
		return Identity{}, err
	}

	std := &StandardIdentity{
		FullName:     name,
		IdentityType: idType,
		Permission:   perm,
	}

	if idType == IdentityTypeGlobal {
		std.NodeEncryptPK = encryptPK
		std.NodeSignPK = signPK
		return FromStandard(std), nil
	}

	// Profile-level: fetch node keys too so callers always see both.
	nodeKey := name.NodeName().String()
	nodeSignHex, err := r.getString(prefixIdentityKey, nodeKey)
	if err != nil {
		return Identity{}, err
	}
	nodeSignPK, err := parseHexKey(nodeSignHex)
	if err != nil {
		return Identity{}, err
	}
	nodeEncHex, err := r.getString(prefixEncryptionKey, nodeKey)
	if err != nil {
		return Identity{}, err
	}
	nodeEncPK, err := parseHexKey(nodeEncHex)
	if err != nil {
		return Identity{}, err
	}

	std.NodeEncryptPK = nodeEncPK
	std.NodeSignPK = nodeSignPK
	std.ProfileEncryptPK = &encryptPK
	std.ProfileSignPK = &signPK
	return FromStandard(std), nil
}

func (r *Registry) resolveDevice(name Name) (Identity, error) {
	key := name.String()

	signHex, err := r.getString(prefixDeviceIDKey, key)
	if err != nil {
		return Identity{}, err
	}
	signPK, err := parseHexKey(signHex)
	if err != nil {
		return Identity{}, err
	}
	encHex, err := r.getString(prefixDeviceEncKey, key)
	if err != nil {
		return Identity{}, err
	}
	encryptPK, err := parseHexKey(encHex)
	if err != nil {
		return Identity{}, err
	}
	permStr, err := r.getString(prefixDevicePerms, key)
	if err != nil {
		return Identity{}, err
	}
	perm, err := ParsePermissionTier(permStr)
	if err != nil {
		return Identity{}, apierr.Wrap(apierr.KindDecodeError, "identity: invalid permission", err)
	}

	profile, err := r.resolveStandard(name.ProfileName())
	if err != nil {
		return Identity{}, err
	}

	dev := &DeviceIdentity{
		FullName:         name,
		NodeEncryptPK:    profile.Standard.NodeEncryptPK,
		NodeSignPK:       profile.Standard.NodeSignPK,
		ProfileEncryptPK: *profile.Standard.ProfileEncryptPK,
		ProfileSignPK:    *profile.Standard.ProfileSignPK,
		DeviceEncryptPK:  encryptPK,
		DeviceSignPK:     signPK,
		Permission:       perm,
	}
	return FromDevice(dev), nil
}

// ListProfiles returns every StandardIdentity (node- and profile-level)
// registered under node.
func (r *Registry) ListProfiles(node Name) ([]Identity, error) {
	var out []Identity
	prefix := prefixIdentityType + "@@" + node.Node
	err := r.store.PrefixScan(family, []byte(prefix), func(e kv.Entry) bool {
		name, parseErr := Parse(string(e.Key[len(prefixIdentityType):]))
		if parseErr != nil || name.Node != node.Node || name.IsDevice() {
			return true
		}
		id, resolveErr := r.resolveStandard(name)
		if resolveErr != nil {
			return true
		}
		out = append(out, id)
		return true
	})
	return out, err
}

// ListProfilesAndDevices returns every StandardIdentity and DeviceIdentity
// registered under node.
func (r *Registry) ListProfilesAndDevices(node Name) ([]Identity, error) {
	profiles, err := r.ListProfiles(node)
	if err != nil {
		return nil, err
	}
	out := append([]Identity(nil), profiles...)

	prefix := prefixDeviceIDKey + "@@" + node.Node
	err = r.store.PrefixScan(family, []byte(prefix), func(e kv.Entry) bool {
		name, parseErr := Parse(string(e.Key[len(prefixDeviceIDKey):]))
		if parseErr != nil || name.Node != node.Node {
			return true
		}
		id, resolveErr := r.resolveDevice(name)
		if resolveErr != nil {
			return true
		}
		out = append(out, id)
		return true
	})
	return out, err
}

// ResolveByIdentityKey reverses a signature public key back to its owning
// Name via the profile_from_identity_key_ index.
func (r *Registry) ResolveByIdentityKey(pk [32]byte) (Name, error) {
	raw, err := r.store.Get(family, []byte(prefixReverseByIDKey+hexKey(pk)))
	if err == kv.ErrNotFound {
		return Name{}, apierr.New(apierr.KindIdentityNotFound, "identity: no identity for given key")
	}
	if err != nil {
		return Name{}, err
	}
	return Parse(string(raw))
}

// EffectiveTier walks an inbox ACL map device -> profile -> node and
// returns the tier of the first entry found, or PermissionNone if none
// apply.
func EffectiveTier(acl map[string]PermissionTier, name Name) PermissionTier {
	if name.IsDevice() {
		if tier, ok := acl[name.String()]; ok {
			return tier
		}
		if tier, ok := acl[name.ProfileName().String()]; ok {
			return tier
		}
		if tier, ok := acl[name.NodeName().String()]; ok {
			return tier
		}
		return PermissionNone
	}
	if name.IsProfile() {
		if tier, ok := acl[name.String()]; ok {
			return tier
		}
		if tier, ok := acl[name.NodeName().String()]; ok {
			return tier
		}
		return PermissionNone
	}
	if tier, ok := acl[name.String()]; ok {
		return tier
	}
	return PermissionNone
}

// HasPermission reports whether name's effective tier in acl meets
// required.
func HasPermission(acl map[string]PermissionTier, name Name, required PermissionTier) bool {
	return EffectiveTier(acl, name).AtLeast(required)
}
