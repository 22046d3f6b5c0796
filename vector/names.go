package vector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hubenschmidt/go-vecrag/core"
)

var collectionNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

var reservedPrefixes = []string{"pg_", "sqlite_", "vecrag_"}

// ValidateCollectionName checks that name is usable as an unquoted SQL
// identifier in both Postgres and SQLite.
func ValidateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return core.NewValidationError("collection", fmt.Sprintf("invalid name %q", name))
	}
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(name, p) {
			return core.NewValidationError("collection", fmt.Sprintf("name %q uses reserved prefix %q", name, p))
		}
	}
	return nil
}
