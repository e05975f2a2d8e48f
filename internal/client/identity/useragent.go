package identity

import "regexp"

var mobileUA = regexp.MustCompile(`(?i)android|iphone|ipad|ipod|blackberry|iemobile|opera mini|mobile`)

// IsMobileUserAgent reports whether ua belongs to a platform where a popup
// challenge is unreliable and the redirect variant must be used instead.
func IsMobileUserAgent(ua string) bool {
	return mobileUA.MatchString(ua)
}
