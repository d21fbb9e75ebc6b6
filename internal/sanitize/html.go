package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	// Use for fields that should only contain plain text (names, titles).
	StrictPolicy = bluemonday.StrictPolicy()

	// UGCPolicy allows safe user-generated content with basic formatting.
	// Use for message bodies, document content, and comments.
	UGCPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML tags and returns plain text.
func Text(input string) string {
	return StrictPolicy.Sanitize(input)
}

// Fragment sanitizes a user-authored rich-text fragment, allowing safe
// formatting tags and removing scripts, iframes, and event handlers.
func Fragment(input string) string {
	return UGCPolicy.Sanitize(input)
}
