// Package api is the typed surface of the REST API
// Every call goes through apiclient.Client, so expired tokens are refreshed transparently
package api

import (
	"context"

	"github.com/nkiryanov/authaudit/internal/apiclient"
)

type doer interface {
	Do(ctx context.Context, req *apiclient.Request, out any) error
}

// API groups endpoint families over one client
type API struct {
	Auth  *AuthAPI
	Demo  *DemoAPI
	Admin *AdminAPI
}

func New(c doer) *API {
	return &API{
		Auth:  &AuthAPI{c: c},
		Demo:  &DemoAPI{c: c},
		Admin: &AdminAPI{c: c},
	}
}
