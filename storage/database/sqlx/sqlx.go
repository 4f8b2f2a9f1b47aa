package sqlxrepos

import (
	"regexp"
	"strings"

	"github.com/skoolpay/skoolpay/core"
)

var identRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// orderBy renders an ORDER BY clause from the bound ordering, dropping any
// field that is not a plain column identifier. Returns "" when nothing
// usable remains.
func orderBy(ordering []core.DBOrdering) string {
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if identRegex.MatchString(ord.Field) {
			parts = append(parts, ord.String())
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// searchPattern wraps a search term for a case-insensitive contains match.
func searchPattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + replacer.Replace(term) + "%"
}
