package download

import (
	"errors"
	"time"
)

// Option defines optional settings for [Handle].
type Option func(*options) error

type options struct {
	progress func(Progress)
	interval time.Duration
	register func(path string)
}

// WithProgress calls fn with the download's progress at most once per
// interval and when the announced length was reached. A non-positive
// interval defaults to one second.
func WithProgress(fn func(Progress), interval time.Duration) Option {
	return func(opts *options) error {
		if fn == nil {
			return errors.New("progress func must not be nil")
		}
		if interval <= 0 {
			interval = time.Second
		}
		opts.progress = fn
		opts.interval = interval
		return nil
	}
}

// WithScratch hands the scratch file path to register as soon as the file
// exists, so an owner can guarantee its removal should the process stop
// before Handle returns.
func WithScratch(register func(path string)) Option {
	return func(opts *options) error {
		if register == nil {
			return errors.New("register func must not be nil")
		}
		opts.register = register
		return nil
	}
}
