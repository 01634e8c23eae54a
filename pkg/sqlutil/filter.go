package sqlutil

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// forbiddenFragments are statement-level constructs that never belong in an
// extraction predicate, whatever libinjection thinks of them.
var forbiddenFragments = []string{";", "--", "/*", "*/", "xp_", "exec ", "execute "}

// ScreenFilter validates an operator-supplied extraction predicate from
// table_configuration before it is embedded into extraction SQL. Filters
// are configuration, not user input, but they cross a trust boundary: the
// people who edit table configuration are not the people who run the
// production database.
func ScreenFilter(filter string) error {
	lowered := strings.ToLower(filter)
	for _, frag := range forbiddenFragments {
		if strings.Contains(lowered, frag) {
			return fmt.Errorf("filter contains forbidden fragment %q", strings.TrimSpace(frag))
		}
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(filter); isSQLi {
		return fmt.Errorf("filter rejected by injection screen (fingerprint %s)", fingerprint)
	}

	return nil
}
