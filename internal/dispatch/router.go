// file: internal/dispatch/router.go
package dispatch

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/jsonrpc"
	"github.com/dkoosis/toolrelay/internal/mcperror"
)

// methodHandler answers one RPC method. It advances lc through validated and executed on success.
type methodHandler func(ctx context.Context, lc *lifecycle, req *jsonrpc.Request) (interface{}, error)

// route maps an RPC method name to its handler.
type route struct {
	method  string
	handler methodHandler
}

// router is a static method table, filled once in New.
type router struct {
	routes map[string]route
}

func newRouter() *router {
	return &router{routes: make(map[string]route)}
}

func (r *router) add(method string, h methodHandler) error {
	if method == "" {
		return errors.New("cannot register route with empty method name")
	}
	if h == nil {
		return errors.Newf("route for method '%s' has no handler", method)
	}
	if _, exists := r.routes[method]; exists {
		return errors.Newf("route for method '%s' already registered", method)
	}
	r.routes[method] = route{method: method, handler: h}
	return nil
}

func (r *router) lookup(method string) (route, error) {
	rt, ok := r.routes[method]
	if !ok {
		return route{}, mcperror.NewMethodNotFoundError(
			fmt.Sprintf("Method '%s' not found", method),
			nil,
			map[string]interface{}{"method": method},
		)
	}
	return rt, nil
}

func (r *router) methods() []string {
	out := make([]string, 0, len(r.routes))
	for m := range r.routes {
		out = append(out, m)
	}
	return out
}
