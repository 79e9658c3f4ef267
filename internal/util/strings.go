package util

import "crypto/subtle"

// SafeTruncate returns at most the first maxLen bytes of s. Record ids and
// secret hashes go through it before they reach a log line.
// A negative maxLen yields "".
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// EqualConstantTime reports whether a and b are equal, in time independent
// of where they first differ. Used for redirect URIs and client ids bound to
// a token.
func EqualConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
