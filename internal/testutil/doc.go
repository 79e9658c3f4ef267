// Package testutil provides mock clocks, id generators and record fixtures
// for deterministic tests of the token packages.
package testutil
