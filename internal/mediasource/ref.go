package mediasource

import (
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoURL expands a bare 11-character video id to a watch URL. Anything else is
// returned trimmed and otherwise untouched.
func VideoURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if videoIDPattern.MatchString(ref) {
		return "https://www.youtube.com/watch?v=" + ref
	}
	return ref
}
