package formx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

const (
	ContentTypeForm = "application/x-www-form-urlencoded"
	contentTypeText = "text/plain; charset=utf-8"
)

// Mode is how parameters travel on the wire.
type Mode int

const (
	ModeQuery Mode = iota
	ModeURLEncoded
	ModeMultipart
)

func (m Mode) String() string {
	switch m {
	case ModeQuery:
		return "query"
	case ModeURLEncoded:
		return "urlencoded"
	case ModeMultipart:
		return "multipart"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Encoded is a materialised wire request.
type Encoded struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string
	Mode        Mode
}

// NewRequest builds an *http.Request for e.
func (e *Encoded) NewRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(e.Body) > 0 {
		body = bytes.NewReader(e.Body)
	}
	req, err := http.NewRequestWithContext(ctx, e.Method, e.URL, body)
	if err != nil {
		return nil, err
	}
	if e.ContentType != "" {
		req.Header.Set("Content-Type", e.ContentType)
	}
	return req, nil
}

// EffectiveMethod returns the verb Serialize would use for p.
func EffectiveMethod(p *Params, method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if p.HasBinary() {
		return http.MethodPost
	}
	if method == "" {
		return http.MethodGet
	}
	return method
}

// Serialize encodes p for method against baseURL.
//
// GET, DELETE and HEAD put parameters in the query string. POST sends a
// multipart body, PUT and PATCH a urlencoded one. Any binary value forces
// multipart and POST. At most one binary value is allowed.
func Serialize(baseURL string, p *Params, method string) (*Encoded, error) {
	strs := make([]string, 0, p.Len())
	var blobKey string
	var blob *Blob

	var err error
	p.Each(func(k string, v any) {
		if err != nil {
			return
		}
		s, b, nerr := normalize(k, v)
		if nerr != nil {
			err = nerr
			return
		}
		if b != nil {
			if blob != nil {
				err = invalid(k, fmt.Sprintf("only one binary value allowed, %q already present", blobKey))
				return
			}
			blobKey, blob = k, b
			return
		}
		strs = append(strs, k, s)
	})
	if err != nil {
		return nil, err
	}

	method = EffectiveMethod(p, method)
	mode := modeFor(method, blob != nil)

	enc := &Encoded{Method: method, URL: baseURL, Mode: mode}
	switch mode {
	case ModeQuery:
		enc.URL = AppendQuery(baseURL, encodePairs(strs))
	case ModeURLEncoded:
		enc.Body = []byte(encodePairs(strs))
		enc.ContentType = ContentTypeForm
	case ModeMultipart:
		body, ctype, err := writeMultipart(strs, blobKey, blob)
		if err != nil {
			return nil, err
		}
		enc.Body, enc.ContentType = body, ctype
	}
	return enc, nil
}

func modeFor(method string, binary bool) Mode {
	if binary {
		return ModeMultipart
	}
	switch method {
	case http.MethodPost:
		return ModeMultipart
	case http.MethodPut, http.MethodPatch:
		return ModeURLEncoded
	default:
		return ModeQuery
	}
}

func encodePairs(kv []string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv[i]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[i+1]))
	}
	return b.String()
}

// AppendQuery joins an encoded query onto base, using "&" when base already
// carries one.
func AppendQuery(base, query string) string {
	if query == "" {
		return base
	}
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		return base + query
	case strings.Contains(base, "?"):
		return base + "&" + query
	default:
		return base + "?" + query
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeMultipart(kv []string, blobKey string, blob *Blob) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for i := 0; i+1 < len(kv); i += 2 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(kv[i])))
		h.Set("Content-Type", contentTypeText)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write([]byte(kv[i+1])); err != nil {
			return nil, "", err
		}
	}

	if blob != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(blobKey), quoteEscaper.Replace(blob.Filename)))
		h.Set("Content-Type", blob.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(blob.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
