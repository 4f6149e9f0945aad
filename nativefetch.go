// Package nativefetch exposes the fetch engine builder.
package nativefetch

import (
	"github.com/adamwoolhether/nativefetch/fetch"
)

// New instantiates a new *fetch.Engine with the provided options.
// If not specified, directories resolve onto the XDG base directories,
// cookies live in memory only and logs go to slog.Default.
func New(opts ...fetch.Option) (*fetch.Engine, error) {
	return fetch.New(opts...)
}
