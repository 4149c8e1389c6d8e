package nvr

import "github.com/banshee-data/camnvr/internal/logging"

// nopLogger returns a Logger at a level high enough that none of its
// calls produce output during tests, without needing to redirect the
// package-level logging sink.
func nopLogger() *logging.Logger {
	return logging.New("test", logging.Error+1)
}
