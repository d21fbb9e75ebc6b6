package messages

import (
	"strings"

	"github.com/loopteam/server/internal/domain/ids"
)

// Mentions extracts mentioned user ids from a message body. A mention is
// written inline as <@ULID>; malformed tokens are skipped and duplicates
// collapse to one entry, in order of first appearance.
func Mentions(body string) []string {
	var out []string
	seen := make(map[string]struct{})
	rest := body
	for {
		start := strings.Index(rest, "<@")
		if start < 0 {
			break
		}
		rest = rest[start+2:]
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			break
		}
		candidate := rest[:end]
		rest = rest[end+1:]
		if ids.Validate(candidate) != nil {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}
