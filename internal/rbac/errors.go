package rbac

import "errors"

var (
	// ErrUnknownRole is returned for role values outside the registry.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrUnknownPermission is returned for permission names outside the catalogue.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrInvalidTable reports a malformed role table.
	ErrInvalidTable = errors.New("rbac: invalid role table")
	// ErrRegistryUnavailable reports a guard with no registry to consult.
	ErrRegistryUnavailable = errors.New("rbac: registry unavailable")
)
