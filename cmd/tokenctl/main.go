package main

import (
	"errors"
	"fmt"
	"os"
)

// version can be set during build with -ldflags
var version = "dev"

func main() {
	a := newApp(os.Stdout)
	root := newRootCmd(a)
	root.Version = version

	err := root.Execute()
	a.close()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

// Exit codes for CLI commands.
const (
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeRejected indicates a token or code was presented and rejected.
	ExitCodeRejected = 2
)

// exitCode determines the exit code based on the error type.
func exitCode(err error) int {
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return ExitCodeRejected
	}
	return ExitCodeError
}

// rejectedError wraps a grant failure so scripts can tell "token invalid"
// apart from "tool broken".
type rejectedError struct {
	code string
	err  error
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("rejected: %s", e.code)
}

func (e *rejectedError) Unwrap() error { return e.err }
