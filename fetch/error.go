package fetch

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/adamwoolhether/nativefetch/fetch/trust"
)

var (
	// ErrInvalidOptions is returned synchronously for options failing
	// validation. It wraps [FieldErrors] when fields are at fault.
	ErrInvalidOptions = errors.New("invalid fetch options")
	// ErrBody is returned synchronously when the request body can't be
	// built, e.g. an unreadable referenced file or undecodable base64.
	ErrBody = errors.New("invalid request body")
	// ErrNetwork marks connection, timeout and transport failures.
	ErrNetwork = errors.New("network failure")
	// ErrTrust is joined with ErrNetwork when the handshake failed
	// certificate verification or pinning.
	ErrTrust = errors.New("trust failure")
	// ErrFetch marks failures reading or writing the response body.
	ErrFetch = errors.New("fetch failed")
	// ErrRequestFailed is the sentinel wrapped by [HTTPStatusError].
	ErrRequestFailed = errors.New("request failed")
	// ErrClosed is returned by Fetch once the engine was closed.
	ErrClosed = errors.New("engine closed")
)

// HTTPStatusError is returned when the server answered outside the 2xx
// range. Result is fully populated.
type HTTPStatusError struct {
	Result *Result
	Err    error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%v: status %d", e.Err, e.Result.Status)
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// Error wraps a sentinel error with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// networkErr classifies a failure of the exchange itself.
func networkErr(err error) error {
	var (
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)

	switch {
	case errors.Is(err, trust.ErrPinMismatch),
		errors.As(err, &verifyErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidErr):
		return fmt.Errorf("%w: %w: %w", ErrNetwork, ErrTrust, err)
	default:
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
}
