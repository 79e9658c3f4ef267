// Package memory provides an in-memory storage.TokenRepository.
//
// It is suitable for development, tests, the tokenctl --memory mode and
// single-instance deployments. Records are copied on the way in and out, so
// callers cannot mutate stored state. Expired records are reclaimed by a
// background sweep every cleanup interval; call Stop to end it.
package memory
