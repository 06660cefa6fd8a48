package formx

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

const (
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypePNG         = "image/png"
)

// Blob is a binary parameter value sent as a multipart file part.
type Blob struct {
	Data        []byte
	ContentType string
	Filename    string
}

func invalid(key, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrInvalidParameter, key, reason)
}

// normalize reduces a parameter value to either a string or a *Blob.
func normalize(key string, v any) (string, *Blob, error) {
	switch val := v.(type) {
	case string:
		return val, nil, nil
	case Blob:
		return "", withDefaults(&val, key, ContentTypeOctetStream), nil
	case *Blob:
		if val == nil {
			return "", nil, invalid(key, "nil blob")
		}
		b := *val
		return "", withDefaults(&b, key, ContentTypeOctetStream), nil
	case []byte:
		return "", withDefaults(&Blob{Data: val}, key, ContentTypeOctetStream), nil
	case image.Image:
		var buf bytes.Buffer
		if err := png.Encode(&buf, val); err != nil {
			return "", nil, fmt.Errorf("%w: %q: png encode: %w", ErrInvalidParameter, key, err)
		}
		return "", withDefaults(&Blob{Data: buf.Bytes()}, key, ContentTypePNG), nil
	default:
		return "", nil, invalid(key, fmt.Sprintf("unsupported value type %T", v))
	}
}

func withDefaults(b *Blob, key, contentType string) *Blob {
	if b.ContentType == "" {
		b.ContentType = contentType
	}
	if b.Filename == "" {
		b.Filename = key
	}
	return b
}

// IsBinary reports whether v is encoded as a multipart file part.
func IsBinary(v any) bool {
	switch v.(type) {
	case Blob, *Blob, []byte, image.Image:
		return true
	}
	return false
}

// HasBinary reports whether any value in p is binary.
func (p *Params) HasBinary() bool {
	found := false
	p.Each(func(_ string, v any) {
		if IsBinary(v) {
			found = true
		}
	})
	return found
}
