// Package validate holds the naming rules the facade's contract puts on
// database/collection identifiers, plus struct-tag validation for the
// wire-facing request DTOs.
package validate

import (
	"strings"

	gmqb "github.com/squall-chua/mongofacade"
)

const maxNameLength = 255

// DatabaseName checks name against the rules a database identifier must
// satisfy: non-empty, at most 255 bytes, only letters/digits/underscore/
// hyphen, no leading dot, and none of `/`, `\`, `..`, or a NUL byte.
func DatabaseName(name string) error {
	if name == "" {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "database name must not be empty")
	}
	if len(name) > maxNameLength {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "database name exceeds %d characters", maxNameLength)
	}
	if strings.HasPrefix(name, ".") {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "database name %q must not start with '.'", name)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") || strings.ContainsRune(name, 0) {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "database name %q contains a disallowed character", name)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return gmqb.NewError(gmqb.KindInvalidArgument, nil, "database name %q contains a disallowed character %q", name, r)
		}
	}
	return nil
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		return true
	default:
		return false
	}
}

// knownSystemCollections are the only names the reserved "system." prefix
// is allowed to take.
var knownSystemCollections = map[string]bool{
	"system.indexes":  true,
	"system.users":    true,
	"system.profile":  true,
	"system.views":    true,
	"system.js":       true,
}

// CollectionName checks name against the rules a collection identifier
// must satisfy: non-empty, at most 255 bytes, must start with a letter or
// underscore, may contain '.' after the first character, no NUL bytes, and
// the "system." prefix is reserved for a fixed set of names.
func CollectionName(name string) error {
	if name == "" {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "collection name must not be empty")
	}
	if len(name) > maxNameLength {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "collection name exceeds %d characters", maxNameLength)
	}
	if strings.ContainsRune(name, 0) {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "collection name %q contains a NUL byte", name)
	}
	first := rune(name[0])
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') || first == '_') {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "collection name %q must begin with a letter or '_'", name)
	}
	if strings.HasPrefix(name, "system.") && !knownSystemCollections[name] {
		return gmqb.NewError(gmqb.KindInvalidArgument, nil, "collection name %q uses the reserved system. prefix", name)
	}
	return nil
}
