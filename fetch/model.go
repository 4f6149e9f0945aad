package fetch

import (
	"time"
)

// ResponseType selects how a response body is materialized.
type ResponseType string

const (
	ResponseText   ResponseType = "text"
	ResponseBase64 ResponseType = "base64"
	ResponseFile   ResponseType = "file"
	ResponseBlob   ResponseType = "blob"
)

// Options describe a single fetch. They are not retained after
// [Engine.Fetch] returned.
type Options struct {
	URL     string            `json:"url" validate:"required,http_url"`
	Method  string            `json:"method" validate:"omitempty,max=32"`
	Headers map[string]string `json:"headers" validate:"omitempty,dive,keys,required,endkeys"`
	Body    Body              `json:"-"`

	// Exactly one of DisableAllSecurity and Trust must be set.
	DisableAllSecurity bool       `json:"disableAllSecurity"`
	Trust              *TrustSpec `json:"sslPinning"`

	FollowRedirects bool          `json:"followRedirects"`
	Timeout         time.Duration `json:"timeoutInterval" validate:"gte=0"`

	ResponseType      ResponseType `json:"responseType" validate:"omitempty,oneof=text base64 file blob"`
	FileSaveDirectory string       `json:"fileSaveDirectory"`
	FileName          string       `json:"fileName" validate:"omitempty,filename"`
}

// Body is a request body: [PlainBody] or [MultipartBody].
type Body interface {
	isBody()
}

// PlainBody is sent as a single part with the request's media type.
type PlainBody struct {
	Text string
}

// MultipartBody is encoded as multipart/form-data, parts in order.
type MultipartBody struct {
	Parts []Part
}

func (PlainBody) isBody()     {}
func (MultipartBody) isBody() {}

// Part is a named form field. A nil Value is an unsupported shape and the
// part is skipped.
type Part struct {
	Key   string
	Value PartValue
}

// PartValue is one of [TextValue], [Base64File] or [ReferencedFile].
type PartValue interface {
	isPartValue()
}

// TextValue is a plain form field.
type TextValue string

// Base64File is a file part whose content travels inline, base64 encoded.
type Base64File struct {
	Data     string
	MimeType string
	FileName string
}

// ReferencedFile is a file part read from Locator, a path or file:// URI
// resolved by the engine's [Opener].
type ReferencedFile struct {
	Locator  string
	MimeType string
	FileName string
}

func (TextValue) isPartValue()      {}
func (Base64File) isPartValue()     {}
func (ReferencedFile) isPartValue() {}

// Result is the normalized outcome of a completed exchange.
type Result struct {
	Status int
	// Headers holds one value per header name: the last one received.
	Headers map[string]string
	Body    ResponseBody
}

// ResponseBody is one of [TextBody], [Base64Body] or [FileBody].
type ResponseBody interface {
	isResponseBody()
}

// TextBody is the response body decoded as a string.
type TextBody string

// Base64Body is the full response body, base64 encoded.
type Base64Body struct {
	Data     string
	MimeType string
}

// FileBody points to the file the response body was written to.
type FileBody struct {
	Path     string
	MimeType string
}

func (TextBody) isResponseBody()   {}
func (Base64Body) isResponseBody() {}
func (FileBody) isResponseBody()   {}
