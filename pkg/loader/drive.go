package loader

import (
	"regexp"
	"strings"
)

var drivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`drive\.google\.com/uc\?(?:[^#]*&)?id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`drive\.google\.com/open\?(?:[^#]*&)?id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`drive\.google\.com/file/d/([a-zA-Z0-9_-]+)`),
}

const driveDirectPrefix = "https://lh3.googleusercontent.com/d/"

// NormalizeDriveURL rewrites Google Drive share links to their direct-view
// form. Other references are returned unchanged.
func NormalizeDriveURL(ref string) string {
	for _, re := range drivePatterns {
		if m := re.FindStringSubmatch(ref); m != nil {
			return driveDirectPrefix + m[1]
		}
	}
	return ref
}

// IsDriveURL reports whether ref points at Google Drive content.
func IsDriveURL(ref string) bool {
	return strings.Contains(ref, "drive.google.com") || strings.Contains(ref, "googleusercontent.com")
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	low := strings.ToLower(ref)
	return strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://")
}

// IsFetchable reports whether ref can be loaded without filesystem access:
// an http(s) URL or a data: URI.
func IsFetchable(ref string) bool {
	return IsRemote(ref) || strings.HasPrefix(ref, "data:")
}
