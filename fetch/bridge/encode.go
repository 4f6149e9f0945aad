package bridge

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/sjson"

	"github.com/adamwoolhether/nativefetch/fetch"
)

// Code classifies an error for callers.
type Code string

const (
	CodeConfig          Code = "CONFIG_ERROR"
	CodeTrust           Code = "TRUST_ERROR"
	CodeBody            Code = "BODY_ERROR"
	CodeWritePermission Code = "WRITE_PERMISSION_DENIED"
	CodeNetwork         Code = "NETWORK_ERROR"
	CodeRequestFailed   Code = "REQUEST_FAILED"
	CodeFetchFailed     Code = "FETCH_FAILED"
	CodeInvalidOptions  Code = "INVALID_OPTIONS"
)

// CodeOf maps err onto its Code. The most specific classification wins:
// a trust failure is also a network failure but reports CodeTrust.
func CodeOf(err error) Code {
	var statusErr *fetch.HTTPStatusError

	switch {
	case errors.As(err, &statusErr):
		return CodeRequestFailed
	case errors.Is(err, fetch.ErrWritePermission):
		return CodeWritePermission
	case errors.Is(err, fetch.ErrTrust):
		return CodeTrust
	case errors.Is(err, fetch.ErrNetwork):
		return CodeNetwork
	case errors.Is(err, fetch.ErrConfig):
		return CodeConfig
	case errors.Is(err, fetch.ErrBody):
		return CodeBody
	case errors.Is(err, fetch.ErrInvalidOptions):
		return CodeInvalidOptions
	default:
		return CodeFetchFailed
	}
}

// EncodeResult encodes the outcome of a fetch. A successful result is
// encoded as
//
//	{"status": 200, "headers": {...}, "bodyString": "..."}
//
// with fileDetails {path|data, mimeType} replacing bodyString for file,
// blob and base64 responses. Failures are encoded by [EncodeError].
func EncodeResult(res *fetch.Result, err error) ([]byte, error) {
	if err != nil {
		return EncodeError(err)
	}
	if res == nil {
		return []byte(`{}`), nil
	}

	return encodeResult(res)
}

// EncodeError encodes err as
//
//	{"error": {"code": "...", "message": "...", "result": {...}}}
//
// where result is present for HTTP status failures only.
func EncodeError(err error) ([]byte, error) {
	out, serr := sjson.SetBytes([]byte(`{}`), "error.code", string(CodeOf(err)))
	if serr != nil {
		return nil, serr
	}

	if out, serr = sjson.SetBytes(out, "error.message", err.Error()); serr != nil {
		return nil, serr
	}

	var statusErr *fetch.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.Result != nil {
		res, serr := encodeResult(statusErr.Result)
		if serr != nil {
			return nil, serr
		}
		if out, serr = sjson.SetRawBytes(out, "error.result", res); serr != nil {
			return nil, serr
		}
	}

	var fields fetch.FieldErrors
	if errors.As(err, &fields) {
		if out, serr = sjson.SetBytes(out, "error.fields", fields); serr != nil {
			return nil, serr
		}
	}

	return out, nil
}

func encodeResult(res *fetch.Result) ([]byte, error) {
	headers := res.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	out, err := sjson.SetBytes([]byte(`{}`), "status", res.Status)
	if err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "headers", headers); err != nil {
		return nil, err
	}

	switch b := res.Body.(type) {
	case fetch.TextBody:
		out, err = sjson.SetBytes(out, "bodyString", string(b))
	case fetch.Base64Body:
		out, err = sjson.SetBytes(out, "fileDetails", map[string]string{"data": b.Data, "mimeType": b.MimeType})
	case fetch.FileBody:
		out, err = sjson.SetBytes(out, "fileDetails", map[string]string{"path": b.Path, "mimeType": b.MimeType})
	}
	if err != nil {
		return nil, err
	}

	return out, nil
}

// EncodeCookies encodes a cookie name to value map as a flat JSON object.
func EncodeCookies(cookies map[string]string) ([]byte, error) {
	if cookies == nil {
		cookies = map[string]string{}
	}

	return json.Marshal(cookies)
}
