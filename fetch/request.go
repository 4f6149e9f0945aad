package fetch

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/adamwoolhether/nativefetch/fetch/tempfile"
)

// defaultMediaType applies to plain bodies unless the request carries a
// content-type header of its own.
const defaultMediaType = "application/json; charset=utf-8"

// newRequest assembles the wire request for o. Files staged for the body
// are registered with scope.
func (e *Engine) newRequest(ctx context.Context, o Options, scope *tempfile.Scope) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(o.Method))
	if method == "" {
		method = http.MethodGet
	}

	mediaType := defaultMediaType
	for k, v := range o.Headers {
		if strings.EqualFold(k, "content-type") {
			mediaType = v
		}
	}

	var (
		body        io.Reader
		contentType string
		mp          *multipartBody
	)

	switch b := o.Body.(type) {
	case nil:
	case PlainBody:
		body = strings.NewReader(b.Text)
		contentType = mediaType
	case MultipartBody:
		var err error
		mp, err = e.prepareMultipart(ctx, b, scope)
		if err != nil {
			return nil, err
		}
		body = mp.open()
		contentType = mp.contentType()
	default:
		return nil, &Error{Err: ErrBody, Detail: fmt.Sprintf("unsupported body type %T", o.Body)}
	}

	req, err := http.NewRequestWithContext(ctx, method, o.URL, body)
	if err != nil {
		if mp != nil {
			body.(io.Closer).Close()
		}
		return nil, fmt.Errorf("%w: instantiating request: %w", ErrInvalidOptions, err)
	}

	for _, k := range slices.Sorted(maps.Keys(o.Headers)) {
		req.Header.Add(k, o.Headers[k])
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if mp != nil {
		req.GetBody = func() (io.ReadCloser, error) {
			return mp.open(), nil
		}
	}

	return req, nil
}
