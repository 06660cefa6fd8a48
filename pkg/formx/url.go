package formx

import (
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/google/go-querystring/query"
)

// BuildURL appends p to base as a query string. Dialog and authorization
// URLs never carry binary payloads, so any binary value is rejected.
func BuildURL(base string, p *Params) (string, error) {
	var err error
	p.Each(func(k string, v any) {
		if err != nil {
			return
		}
		if _, _, nerr := normalize(k, v); nerr != nil {
			err = nerr
			return
		}
		if IsBinary(v) {
			err = invalid(k, "binary value in URL")
		}
	})
	if err != nil {
		return "", err
	}
	q, err := p.Encode()
	if err != nil {
		return "", err
	}
	return AppendQuery(base, q), nil
}

// ParamFromURL returns the named parameter from the query or, failing that,
// the fragment of rawURL. The empty string means absent.
func ParamFromURL(rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if v, ok := URLParams(u).GetString(name); ok {
		return v
	}
	return ""
}

// URLParams merges the query and fragment parameters of u. Fragment values
// win, since providers put the token result there.
func URLParams(u *url.URL) *Params {
	p := ParseQuery(u.RawQuery)
	frag := u.EscapedFragment()
	// Some redirects nest a query inside the fragment ("#/path?a=b").
	if i := strings.IndexByte(frag, '?'); i >= 0 {
		frag = frag[i+1:]
	}
	ParseQuery(frag).Each(func(k string, v any) { p.Set(k, v) })
	return p
}

// FromStruct converts a struct tagged with `url:"..."` into Params.
// Multi-valued fields are joined with commas. Keys come out sorted.
func FromStruct(v any) (*Params, error) {
	if v == nil {
		return &Params{}, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return &Params{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, invalid("", "FromStruct needs a struct, got "+rv.Kind().String())
	}

	vals, err := query.Values(v)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := &Params{}
	for _, k := range keys {
		p.Set(k, strings.Join(vals[k], ","))
	}
	return p, nil
}
