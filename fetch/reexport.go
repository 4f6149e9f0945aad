package fetch

import (
	"github.com/adamwoolhether/nativefetch/fetch/download"
	"github.com/adamwoolhether/nativefetch/fetch/trust"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from [trust] and [download].
// ————————————————————————————————————————————————————————————————————

type (
	// TrustSpec is the trust configuration of a request.
	TrustSpec = trust.Spec

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error
)

// ————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————

var (
	// ErrConfig marks a malformed or contradictory trust configuration,
	// reported before any network activity.
	ErrConfig = trust.ErrConfig

	// ErrPinMismatch indicates no certificate presented by the server
	// matched a public-key pin.
	ErrPinMismatch = trust.ErrPinMismatch

	// ErrWritePermission indicates the response destination directory
	// does not accept new files. Nothing was written.
	ErrWritePermission = download.ErrWritePermission

	// ErrContentLengthMismatch indicates the byte count did not match
	// Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch
)
