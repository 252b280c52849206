// ABOUTME: Request body encoding for the dispatcher: raw bytes, JSON values, urlencoded and multipart forms
// ABOUTME: Forms carry their own content type; everything else defaults to application/json

package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strings"
)

// Form is a multipart/form-data payload. The dispatcher never labels it as
// JSON; the encoder sets the multipart content type with its boundary.
type Form struct {
	fields []formField
	files  []formFile
}

type formField struct {
	name, value string
}

type formFile struct {
	field, filename string
	content         io.Reader
}

// NewForm creates an empty form.
func NewForm() *Form {
	return &Form{}
}

// Set adds a text field.
func (f *Form) Set(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// AddFile adds a file part read from content.
func (f *Form) AddFile(field, filename string, content io.Reader) *Form {
	f.files = append(f.files, formFile{field: field, filename: filename, content: content})
	return f
}

// encode writes the form and returns the body with its content type.
func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, fld := range f.fields {
		if err := w.WriteField(fld.name, fld.value); err != nil {
			return nil, "", fmt.Errorf("writing form field %q: %w", fld.name, err)
		}
	}
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, "", fmt.Errorf("creating form file %q: %w", file.field, err)
		}
		if _, err := io.Copy(part, file.content); err != nil {
			return nil, "", fmt.Errorf("copying form file %q: %w", file.field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// encodedBody is a request body plus the content type its encoding implies.
// formType is empty for payloads that take the JSON default.
type encodedBody struct {
	reader   io.Reader
	formType string
}

// encodeBody turns an Options.Body value into a reader. A nil reader means no body.
func encodeBody(body any) (encodedBody, error) {
	switch v := body.(type) {
	case nil:
		return encodedBody{}, nil
	case *Form:
		if v == nil {
			return encodedBody{}, nil
		}
		r, ct, err := v.encode()
		if err != nil {
			return encodedBody{}, fmt.Errorf("%w: %v", ErrEncodeBody, err)
		}
		return encodedBody{reader: r, formType: ct}, nil
	case url.Values:
		return encodedBody{reader: strings.NewReader(v.Encode()), formType: "application/x-www-form-urlencoded"}, nil
	case []byte:
		if len(v) == 0 {
			return encodedBody{}, nil
		}
		return encodedBody{reader: bytes.NewReader(v)}, nil
	case json.RawMessage:
		if len(v) == 0 {
			return encodedBody{}, nil
		}
		return encodedBody{reader: bytes.NewReader(v)}, nil
	case string:
		if v == "" {
			return encodedBody{}, nil
		}
		return encodedBody{reader: strings.NewReader(v)}, nil
	case io.Reader:
		return encodedBody{reader: v}, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return encodedBody{}, fmt.Errorf("%w: %v", ErrEncodeBody, err)
		}
		return encodedBody{reader: bytes.NewReader(data)}, nil
	}
}
