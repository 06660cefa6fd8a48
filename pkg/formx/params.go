// Package formx turns ordered parameter maps into wire requests: query
// strings, urlencoded bodies and multipart/form-data bodies carrying at most
// one binary payload.
package formx

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidParameter reports a parameter value the codec cannot encode.
var ErrInvalidParameter = errors.New("invalid parameter")

// Params is an insertion-ordered parameter map. The zero value is ready to use.
//
// Values may be string, Blob, *Blob, []byte or image.Image. Anything else is
// accepted by Set but rejected when the map is serialized.
type Params struct {
	keys []string
	vals map[string]any
}

// NewParams builds a map from alternating key/value arguments. It panics
// on an odd argument count or a non-string key, both programmer errors.
func NewParams(kv ...any) *Params {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("formx: NewParams: odd argument count %d", len(kv)))
	}
	p := &Params{}
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("formx: NewParams: key %d is %T, not string", i/2, kv[i]))
		}
		p.Set(k, kv[i+1])
	}
	return p
}

// Set stores v under k. An existing key keeps its position.
func (p *Params) Set(k string, v any) *Params {
	if p.vals == nil {
		p.vals = make(map[string]any)
	}
	if _, ok := p.vals[k]; !ok {
		p.keys = append(p.keys, k)
	}
	p.vals[k] = v
	return p
}

// SetDefault stores v only if k is absent.
func (p *Params) SetDefault(k string, v any) *Params {
	if !p.Has(k) {
		p.Set(k, v)
	}
	return p
}

func (p *Params) Get(k string) (any, bool) {
	if p == nil || p.vals == nil {
		return nil, false
	}
	v, ok := p.vals[k]
	return v, ok
}

// GetString returns the value for k when it is a string.
func (p *Params) GetString(k string) (string, bool) {
	v, ok := p.Get(k)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p *Params) Has(k string) bool {
	_, ok := p.Get(k)
	return ok
}

// Del removes k and returns its previous value.
func (p *Params) Del(k string) (any, bool) {
	v, ok := p.Get(k)
	if !ok {
		return nil, false
	}
	delete(p.vals, k)
	for i, key := range p.keys {
		if key == k {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Each calls fn for every entry in insertion order.
func (p *Params) Each(fn func(k string, v any)) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		fn(k, p.vals[k])
	}
}

// Clone returns a shallow copy. Blob data is shared.
func (p *Params) Clone() *Params {
	c := &Params{}
	p.Each(func(k string, v any) { c.Set(k, v) })
	return c
}

// Encode renders string values as an application/x-www-form-urlencoded
// string in insertion order. It fails on any non-string value.
func (p *Params) Encode() (string, error) {
	var b strings.Builder
	var err error
	p.Each(func(k string, v any) {
		if err != nil {
			return
		}
		s, ok := v.(string)
		if !ok {
			err = invalid(k, "binary value cannot be query encoded")
			return
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(s))
	})
	return b.String(), err
}

// Values copies the string entries into url.Values. Order is lost.
func (p *Params) Values() url.Values {
	out := url.Values{}
	p.Each(func(k string, v any) {
		if s, ok := v.(string); ok {
			out.Set(k, s)
		}
	})
	return out
}

// ParseQuery parses a urlencoded string keeping first-seen key order. Later
// duplicates overwrite earlier values. Malformed pairs are skipped.
func ParseQuery(raw string) *Params {
	p := &Params{}
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		p.Set(key, val)
	}
	return p
}
