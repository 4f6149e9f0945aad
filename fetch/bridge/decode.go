// Package bridge translates between the JSON shapes exchanged with callers
// and the fetch package's types.
package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/adamwoolhether/nativefetch/fetch"
)

// ErrMalformed is returned when a call's JSON can't be decoded.
var ErrMalformed = errors.New("malformed call")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", fetch.ErrInvalidOptions, ErrMalformed, fmt.Sprintf(format, args...))
}

func parse(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, malformed("invalid json")
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return gjson.Result{}, malformed("call must be a json object")
	}

	return root, nil
}

// DecodeFetch decodes a fetch call of the form
//
//	{"url": "...", "options": {...}}
//
// into Options. Semantic validation is left to the engine.
func DecodeFetch(data []byte) (fetch.Options, error) {
	root, err := parse(data)
	if err != nil {
		return fetch.Options{}, err
	}

	o := fetch.Options{URL: root.Get("url").String()}

	opts := root.Get("options")
	if !opts.Exists() || opts.Type == gjson.Null {
		return o, nil
	}
	if !opts.IsObject() {
		return fetch.Options{}, malformed("options must be an object")
	}

	o.Method = opts.Get("method").String()
	o.DisableAllSecurity = opts.Get("disableAllSecurity").Bool()
	o.FollowRedirects = opts.Get("followRedirects").Bool()
	o.ResponseType = fetch.ResponseType(opts.Get("responseType").String())
	o.FileSaveDirectory = opts.Get("fileSaveDirectory").String()
	o.FileName = opts.Get("fileName").String()

	if t := opts.Get("timeoutInterval"); t.Exists() {
		if t.Type != gjson.Number {
			return fetch.Options{}, malformed("timeoutInterval must be a number of milliseconds")
		}
		o.Timeout = time.Duration(t.Float() * float64(time.Millisecond))
	}

	if h := opts.Get("headers"); h.Exists() && h.Type != gjson.Null {
		if !h.IsObject() {
			return fetch.Options{}, malformed("headers must be an object")
		}
		o.Headers = make(map[string]string)
		h.ForEach(func(k, v gjson.Result) bool {
			o.Headers[k.String()] = v.String()
			return true
		})
	}

	trust, err := decodeTrust(opts)
	if err != nil {
		return fetch.Options{}, err
	}
	o.Trust = trust

	body, err := decodeBody(opts.Get("body"))
	if err != nil {
		return fetch.Options{}, err
	}
	o.Body = body

	return o, nil
}

// decodeTrust reads sslPinning.certs. pkPinning is accepted next to
// sslPinning or inside it.
func decodeTrust(opts gjson.Result) (*fetch.TrustSpec, error) {
	pinning := opts.Get("sslPinning")
	if !pinning.Exists() || pinning.Type == gjson.Null {
		return nil, nil
	}
	if !pinning.IsObject() {
		return nil, malformed("sslPinning must be an object")
	}

	certs := pinning.Get("certs")
	if certs.Exists() && !certs.IsArray() {
		return nil, malformed("sslPinning.certs must be an array")
	}

	spec := fetch.TrustSpec{
		PublicKeyPinning: opts.Get("pkPinning").Bool() || pinning.Get("pkPinning").Bool(),
	}
	for _, c := range certs.Array() {
		spec.Certificates = append(spec.Certificates, c.String())
	}

	return &spec, nil
}

// decodeBody accepts a string, an object carrying formData._parts or
// _parts, or any other JSON value which is sent verbatim.
func decodeBody(b gjson.Result) (fetch.Body, error) {
	switch {
	case !b.Exists() || b.Type == gjson.Null:
		return nil, nil
	case b.Type == gjson.String:
		return fetch.PlainBody{Text: b.String()}, nil
	}

	parts := b.Get("formData._parts")
	if !parts.Exists() {
		parts = b.Get("_parts")
	}
	if !parts.Exists() {
		return fetch.PlainBody{Text: b.Raw}, nil
	}
	if !parts.IsArray() {
		return nil, malformed("_parts must be an array")
	}

	var mb fetch.MultipartBody
	for _, p := range parts.Array() {
		mb.Parts = append(mb.Parts, decodePart(p))
	}

	return mb, nil
}

// decodePart decodes a [key, value] pair. Shapes it doesn't recognize
// yield a part with a nil Value, which the engine skips.
func decodePart(p gjson.Result) fetch.Part {
	if !p.IsArray() {
		return fetch.Part{}
	}

	var part fetch.Part

	switch k := p.Get("0"); k.Type {
	case gjson.String, gjson.Number:
		part.Key = k.String()
	}

	switch v := p.Get("1"); {
	case v.Type == gjson.String, v.Type == gjson.Number, v.Type == gjson.True, v.Type == gjson.False:
		part.Value = fetch.TextValue(v.String())

	case v.IsObject() && v.Get("type").Exists():
		fileName := v.Get("fileName").String()
		if fileName == "" {
			fileName = v.Get("name").String()
		}
		mimeType := v.Get("type").String()

		switch {
		case v.Get("data").Exists():
			part.Value = fetch.Base64File{Data: v.Get("data").String(), MimeType: mimeType, FileName: fileName}
		case v.Get("uri").Exists() || v.Get("path").Exists():
			locator := v.Get("uri").String()
			if locator == "" {
				locator = v.Get("path").String()
			}
			part.Value = fetch.ReferencedFile{Locator: locator, MimeType: mimeType, FileName: fileName}
		}
	}

	return part
}

// DecodeDomain decodes {"domain": "..."}.
func DecodeDomain(data []byte) (string, error) {
	return requiredString(data, "domain")
}

// DecodeCookieName decodes {"cookieName": "..."}.
func DecodeCookieName(data []byte) (string, error) {
	return requiredString(data, "cookieName")
}

// DecodeLogging decodes {"enableLogging": true|false}.
func DecodeLogging(data []byte) (bool, error) {
	root, err := parse(data)
	if err != nil {
		return false, err
	}

	v := root.Get("enableLogging")
	if v.Type != gjson.True && v.Type != gjson.False {
		return false, malformed("enableLogging must be a boolean")
	}

	return v.Bool(), nil
}

func requiredString(data []byte, field string) (string, error) {
	root, err := parse(data)
	if err != nil {
		return "", err
	}

	v := root.Get(field)
	if v.Type != gjson.String || v.String() == "" {
		return "", malformed("%s is required", field)
	}

	return v.String(), nil
}
