package containers

import (
	"regexp"
)

// ParseListingID recovers the numeric id of the row named name from a
// human-readable CLI listing such as `forgejo admin auth list`:
//
//	ID	Name		Type	Enabled
//	1	keycloak	OAuth2	true
//
// This depends on the third party's table layout and is an adapter, not a
// stable contract. Prefer a structured API lookup where one exists.
func ParseListingID(output, name string) (string, bool) {
	re := regexp.MustCompile(`(?m)^\s*(\d+)\s+` + regexp.QuoteMeta(name) + `(?:\s|$)`)
	m := re.FindStringSubmatch(output)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}
