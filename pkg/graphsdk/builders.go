package graphsdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/graphconnect/pkg/formx"
)

const (
	paramAccessToken = "access_token"
	paramMethod      = "method"
	paramFormat      = "format"
)

// BuildRequest builds a REST call whose method name is taken from the
// mandatory "method" parameter.
func (s *Session) BuildRequest(params *formx.Params, httpMethod string) (*Request, error) {
	name, ok := params.GetString(paramMethod)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, newError(ErrInvalidParameter, "build request", fmt.Errorf("%w: missing %q", formx.ErrInvalidParameter, paramMethod))
	}
	p := params.Clone()
	p.Del(paramMethod)
	return s.BuildRESTRequest(name, p, httpMethod)
}

// BuildRESTRequest builds a call to a named REST method such as
// "users.getInfo". Responses are requested as JSON.
func (s *Session) BuildRESTRequest(methodName string, params *formx.Params, httpMethod string) (*Request, error) {
	methodName = strings.TrimSpace(methodName)
	if methodName == "" {
		return nil, newError(ErrInvalidParameter, "build rest request", fmt.Errorf("%w: empty method name", formx.ErrInvalidParameter))
	}

	p := cloneParams(params)
	p.SetDefault(paramFormat, "json")
	if err := s.injectToken("build rest request", p); err != nil {
		return nil, err
	}
	return s.newRequest(s.endpoints.RESTURL+methodName, p, httpMethod)
}

// BuildGraphRequest builds a call to a resource path such as "me" or
// "me/feed". A nil params and an empty method mean GET with no parameters.
func (s *Session) BuildGraphRequest(path string, params *formx.Params, httpMethod string) (*Request, error) {
	p := cloneParams(params)
	if err := s.injectToken("build graph request", p); err != nil {
		return nil, err
	}
	return s.newRequest(s.endpoints.GraphURL+strings.TrimLeft(path, "/"), p, httpMethod)
}

// injectToken adds the session token unless the caller supplied one. A
// token that is present but expired fails with ErrSessionExpired.
func (s *Session) injectToken(op string, p *formx.Params) error {
	if p.Has(paramAccessToken) {
		return nil
	}
	creds := s.Snapshot()
	if creds.AccessToken == "" {
		return nil
	}
	if creds.Expired(s.now()) {
		return newError(ErrSessionExpired, op, fmt.Errorf("token expired at %s", creds.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	p.Set(paramAccessToken, creds.AccessToken)
	return nil
}

func cloneParams(p *formx.Params) *formx.Params {
	if p == nil {
		return &formx.Params{}
	}
	return p.Clone()
}
