// Package util provides small helpers shared across the token packages.
//
// Key utilities:
//   - SafeTruncate: shortens ids and hashes before they are logged
//   - EqualConstantTime: compares token-bound values without early exit
package util
