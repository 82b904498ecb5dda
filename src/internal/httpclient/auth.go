package httpclient

import "net/http"

// AuthProvider adds credentials to an outgoing request.
type AuthProvider interface {
	Apply(req *http.Request) error
}

// BearerTokenAuth signs webhook deliveries with a shared token.
type BearerTokenAuth struct {
	Token string
}

func (a *BearerTokenAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}
