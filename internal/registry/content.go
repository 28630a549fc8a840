// file: internal/registry/content.go
package registry

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ContentKind distinguishes the parts of a tool result.
type ContentKind string

// Supported content kinds.
const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
)

// Content is one part of a tool result.
type Content struct {
	Kind ContentKind
	// Text is set for KindText.
	Text string
	// MimeType and Base64Data are set for KindImage.
	MimeType   string
	Base64Data string
}

// Text returns a text content part.
func Text(s string) Content {
	return Content{Kind: KindText, Text: s}
}

// Image returns an image content part from base64-encoded bytes.
func Image(mimeType, base64Data string) Content {
	return Content{Kind: KindImage, MimeType: mimeType, Base64Data: base64Data}
}

type imageURL struct {
	URL string `json:"url"`
}

type wireContent struct {
	Type     string    `json:"type"`
	Text     *string   `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

// MarshalJSON renders text parts as {type,text} and images as a data URL.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindText:
		text := c.Text
		return json.Marshal(wireContent{Type: string(KindText), Text: &text})
	case KindImage:
		url := "data:" + c.MimeType + ";base64," + c.Base64Data
		return json.Marshal(wireContent{Type: string(KindImage), ImageURL: &imageURL{URL: url}})
	default:
		return nil, errors.Newf("unknown content kind %q", c.Kind)
	}
}

// Result is the ordered output of one tool call.
type Result struct {
	Content []Content `json:"content"`
	// IsError reports a tool-level failure carried as content.
	IsError bool `json:"isError,omitempty"`
}

// NewResult builds a result from parts, preserving their order.
func NewResult(parts ...Content) *Result {
	if parts == nil {
		parts = []Content{}
	}
	return &Result{Content: parts}
}

// TextResult is shorthand for a result holding one text part.
func TextResult(s string) *Result {
	return NewResult(Text(s))
}
