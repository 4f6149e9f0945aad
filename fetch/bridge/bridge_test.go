package bridge_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/adamwoolhether/nativefetch/fetch"
	"github.com/adamwoolhether/nativefetch/fetch/bridge"
)

func TestDecodeFetch(t *testing.T) {
	call := `{
		"url": "https://www.example.com/upload",
		"options": {
			"method": "post",
			"headers": {"Accept": "application/json", "X-Count": 3},
			"sslPinning": {"certs": ["api", "backup"]},
			"pkPinning": true,
			"followRedirects": true,
			"timeoutInterval": 1500,
			"responseType": "base64",
			"fileSaveDirectory": "documents",
			"fileName": "out.bin",
			"body": {"formData": {"_parts": [
				["a", "1"],
				[2, 3.5],
				["flag", true],
				["inline", {"type": "image/png", "name": "p.png", "data": "WA=="}],
				["ref", {"type": "text/csv", "fileName": "r.csv", "name": "ignored", "uri": "file:///tmp/r.csv"}],
				["path", {"type": "text/plain", "path": "/tmp/p.txt"}],
				["odd", {"foo": "bar"}],
				"not a pair"
			]}}
		}
	}`

	got, err := bridge.DecodeFetch([]byte(call))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	exp := fetch.Options{
		URL:     "https://www.example.com/upload",
		Method:  "post",
		Headers: map[string]string{"Accept": "application/json", "X-Count": "3"},
		Trust: &fetch.TrustSpec{
			Certificates:     []string{"api", "backup"},
			PublicKeyPinning: true,
		},
		FollowRedirects:   true,
		Timeout:           1500 * time.Millisecond,
		ResponseType:      fetch.ResponseBase64,
		FileSaveDirectory: "documents",
		FileName:          "out.bin",
		Body: fetch.MultipartBody{Parts: []fetch.Part{
			{Key: "a", Value: fetch.TextValue("1")},
			{Key: "2", Value: fetch.TextValue("3.5")},
			{Key: "flag", Value: fetch.TextValue("true")},
			{Key: "inline", Value: fetch.Base64File{Data: "WA==", MimeType: "image/png", FileName: "p.png"}},
			{Key: "ref", Value: fetch.ReferencedFile{Locator: "file:///tmp/r.csv", MimeType: "text/csv", FileName: "r.csv"}},
			{Key: "path", Value: fetch.ReferencedFile{Locator: "/tmp/p.txt", MimeType: "text/plain"}},
			{Key: "odd"},
			{},
		}},
	}

	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("options mismatch (-exp +got):\n%s", diff)
	}
}

func TestDecodeFetch_Bodies(t *testing.T) {
	testCases := []struct {
		name string
		body string
		exp  fetch.Body
	}{
		{name: "none", body: `null`, exp: nil},
		{name: "string", body: `"{\"a\":1}"`, exp: fetch.PlainBody{Text: `{"a":1}`}},
		{name: "bare parts", body: `{"_parts":[["k","v"]]}`, exp: fetch.MultipartBody{Parts: []fetch.Part{{Key: "k", Value: fetch.TextValue("v")}}}},
		{name: "raw object", body: `{"a":1}`, exp: fetch.PlainBody{Text: `{"a":1}`}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			call := fmt.Sprintf(`{"url":"https://example.com","options":{"disableAllSecurity":true,"body":%s}}`, tc.body)

			got, err := bridge.DecodeFetch([]byte(call))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tc.exp, got.Body); diff != "" {
				t.Errorf("body mismatch (-exp +got):\n%s", diff)
			}
			if !got.DisableAllSecurity || got.Trust != nil {
				t.Errorf("exp security disabled without pinning, got %+v", got)
			}
		})
	}
}

func TestDecodeFetch_Malformed(t *testing.T) {
	testCases := []struct {
		name string
		call string
	}{
		{name: "not json", call: `{"url":`},
		{name: "not an object", call: `["https://example.com"]`},
		{name: "options not an object", call: `{"url":"https://example.com","options":"x"}`},
		{name: "headers not an object", call: `{"url":"https://example.com","options":{"headers":[1]}}`},
		{name: "timeout not a number", call: `{"url":"https://example.com","options":{"timeoutInterval":"10s"}}`},
		{name: "certs not an array", call: `{"url":"https://example.com","options":{"sslPinning":{"certs":"a"}}}`},
		{name: "parts not an array", call: `{"url":"https://example.com","options":{"body":{"_parts":{}}}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bridge.DecodeFetch([]byte(tc.call))
			if !errors.Is(err, bridge.ErrMalformed) || !errors.Is(err, fetch.ErrInvalidOptions) {
				t.Fatalf("exp ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecodeCookieCalls(t *testing.T) {
	d, err := bridge.DecodeDomain([]byte(`{"domain":"www.example.com"}`))
	if err != nil || d != "www.example.com" {
		t.Errorf("exp domain, got %q, %v", d, err)
	}

	if _, err := bridge.DecodeDomain([]byte(`{}`)); !errors.Is(err, bridge.ErrMalformed) {
		t.Errorf("exp ErrMalformed, got %v", err)
	}

	n, err := bridge.DecodeCookieName([]byte(`{"cookieName":"session"}`))
	if err != nil || n != "session" {
		t.Errorf("exp cookie name, got %q, %v", n, err)
	}

	on, err := bridge.DecodeLogging([]byte(`{"enableLogging":true}`))
	if err != nil || !on {
		t.Errorf("exp logging enabled, got %v, %v", on, err)
	}

	if _, err := bridge.DecodeLogging([]byte(`{"enableLogging":"yes"}`)); !errors.Is(err, bridge.ErrMalformed) {
		t.Errorf("exp ErrMalformed, got %v", err)
	}
}

func TestCodeOf(t *testing.T) {
	testCases := []struct {
		err error
		exp bridge.Code
	}{
		{fmt.Errorf("x: %w", fetch.ErrConfig), bridge.CodeConfig},
		{fmt.Errorf("%w: %w: x", fetch.ErrNetwork, fetch.ErrTrust), bridge.CodeTrust},
		{fmt.Errorf("%w: x", fetch.ErrNetwork), bridge.CodeNetwork},
		{&fetch.Error{Err: fetch.ErrBody}, bridge.CodeBody},
		{&fetch.DownloadError{Err: fetch.ErrWritePermission}, bridge.CodeWritePermission},
		{&fetch.HTTPStatusError{Result: &fetch.Result{Status: 500}, Err: fetch.ErrRequestFailed}, bridge.CodeRequestFailed},
		{fmt.Errorf("%w: x", fetch.ErrInvalidOptions), bridge.CodeInvalidOptions},
		{fmt.Errorf("%w: x", fetch.ErrFetch), bridge.CodeFetchFailed},
		{fetch.ErrClosed, bridge.CodeFetchFailed},
	}

	for _, tc := range testCases {
		t.Run(string(tc.exp), func(t *testing.T) {
			if got := bridge.CodeOf(tc.err); got != tc.exp {
				t.Errorf("exp %s, got %s", tc.exp, got)
			}
		})
	}
}

func TestEncodeResult(t *testing.T) {
	testCases := []struct {
		name string
		res  *fetch.Result
		path string
		exp  string
	}{
		{
			name: "text",
			res:  &fetch.Result{Status: 200, Headers: map[string]string{"X-A": "b"}, Body: fetch.TextBody("hi")},
			path: "bodyString",
			exp:  "hi",
		},
		{
			name: "base64",
			res:  &fetch.Result{Status: 200, Body: fetch.Base64Body{Data: "WA==", MimeType: "image/png"}},
			path: "fileDetails.data",
			exp:  "WA==",
		},
		{
			name: "file",
			res:  &fetch.Result{Status: 201, Body: fetch.FileBody{Path: "/tmp/x.pdf", MimeType: "application/pdf"}},
			path: "fileDetails.path",
			exp:  "/tmp/x.pdf",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := bridge.EncodeResult(tc.res, nil)
			if err != nil {
				t.Fatal(err)
			}

			doc := gjson.ParseBytes(out)
			if got := doc.Get(tc.path).String(); got != tc.exp {
				t.Errorf("exp %s=%q, got %q in %s", tc.path, tc.exp, got, out)
			}
			if got := doc.Get("status").Int(); got != int64(tc.res.Status) {
				t.Errorf("exp status %d, got %d", tc.res.Status, got)
			}
			if !doc.Get("headers").IsObject() {
				t.Errorf("exp headers object, got %s", out)
			}
		})
	}
}

func TestEncodeError_StatusFailure(t *testing.T) {
	res := &fetch.Result{
		Status:  404,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    fetch.TextBody(`{"error":"not found"}`),
	}

	out, err := bridge.EncodeResult(res, &fetch.HTTPStatusError{Result: res, Err: fetch.ErrRequestFailed})
	if err != nil {
		t.Fatal(err)
	}

	doc := gjson.ParseBytes(out)
	if got := doc.Get("error.code").String(); got != string(bridge.CodeRequestFailed) {
		t.Errorf("exp %s, got %s", bridge.CodeRequestFailed, got)
	}
	if got := doc.Get("error.result.status").Int(); got != 404 {
		t.Errorf("exp embedded status 404, got %d", got)
	}
	if got := doc.Get("error.result.bodyString").String(); got != `{"error":"not found"}` {
		t.Errorf("exp embedded body, got %q", got)
	}
	if got := doc.Get("error.result.headers.Content-Type").String(); got != "application/json" {
		t.Errorf("exp embedded headers, got %q", got)
	}
}

func TestEncodeError_Fields(t *testing.T) {
	err := fmt.Errorf("%w: %w", fetch.ErrInvalidOptions, fetch.FieldErrors{{Field: "url", Err: "This field is required"}})

	out, eerr := bridge.EncodeError(err)
	if eerr != nil {
		t.Fatal(eerr)
	}

	doc := gjson.ParseBytes(out)
	if got := doc.Get("error.code").String(); got != string(bridge.CodeInvalidOptions) {
		t.Errorf("exp %s, got %s", bridge.CodeInvalidOptions, got)
	}
	if got := doc.Get("error.fields.0.field").String(); got != "url" {
		t.Errorf("exp url field, got %s", out)
	}
	if doc.Get("error.result").Exists() {
		t.Error("exp no result for a validation failure")
	}
}

func TestEncodeCookies(t *testing.T) {
	out, err := bridge.EncodeCookies(map[string]string{"session": "abc", "a.b": "c"})
	if err != nil {
		t.Fatal(err)
	}

	doc := gjson.ParseBytes(out)
	if doc.Get("session").String() != "abc" || doc.Get(`a\.b`).String() != "c" {
		t.Errorf("unexpected cookies %s", out)
	}

	out, err = bridge.EncodeCookies(nil)
	if err != nil || string(out) != "{}" {
		t.Errorf("exp empty object, got %s, %v", out, err)
	}
}
