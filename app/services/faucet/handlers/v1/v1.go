// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/faucet/app/services/faucet/handlers/v1/faucetgrp"
	"github.com/ardanlabs/faucet/business/core/faucet"
	"github.com/ardanlabs/faucet/foundation/events"
	"github.com/ardanlabs/faucet/foundation/web"
	"go.uber.org/zap"
)

// The browser client calls the routes under this group.
const legacy = "api/faucet"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log        *zap.SugaredLogger
	Core       *faucet.Core
	Evts       *events.Events
	TrustProxy bool
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	fgh := faucetgrp.Handlers{
		Log:        cfg.Log,
		Core:       cfg.Core,
		Evts:       cfg.Evts,
		TrustProxy: cfg.TrustProxy,
	}

	for _, group := range []string{"", legacy} {
		app.Handle(http.MethodPost, group, "/challenge", fgh.Challenge)
		app.Handle(http.MethodPost, group, "/claim", fgh.Claim)
		app.Handle(http.MethodGet, group, "/info", fgh.Info)

		// Accept CORS 'OPTIONS' preflight requests.
		for _, path := range []string{"/challenge", "/claim", "/info"} {
			app.Handle(http.MethodOptions, group, path, fgh.Preflight)
		}
	}

	app.Handle(http.MethodGet, "", "/events", fgh.Events)
}
