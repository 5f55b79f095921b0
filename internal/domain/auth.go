package domain

import "context"

type Principal struct {
	Subject   string
	Roles     []string
	Scopes    []string
	RawClaims map[string]any
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

type Authorizer interface {
	Require(principal Principal, permission string) error
}
