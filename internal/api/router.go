package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "callcrm/internal/api/context"
	"callcrm/internal/api/handlers"
	"callcrm/internal/api/middleware"
)

type Dependencies struct {
	WebhookHandler   *handlers.WebhookHandler
	CallHandler      *handlers.CallHandler
	CustomerHandler  *handlers.CustomerHandler
	DashboardHandler *handlers.DashboardHandler
	DeliveryHandler  *handlers.DeliveryHandler
	HealthHandler    *handlers.HealthHandler
	AuthMiddleware   *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Inbound provider events. The provider authenticates via payload
	// signature, not via the dashboard credentials.
	router.POST("/webhooks/call-events", wrap(deps.WebhookHandler.Ingest))

	router.GET("/health", wrap(deps.HealthHandler.Check))

	authMid := deps.AuthMiddleware

	// CRM dashboard API
	router.GET("/api/v1/calls",
		chain(deps.CallHandler.List, authMid.Handle))
	router.GET("/api/v1/calls/:call_id",
		chain(deps.CallHandler.Get, authMid.Handle))
	router.GET("/api/v1/calls/:call_id/events",
		chain(deps.CallHandler.Events, authMid.Handle))

	router.GET("/api/v1/customers",
		chain(deps.CustomerHandler.List, authMid.Handle))
	router.GET("/api/v1/customers/:customer_id/calls",
		chain(deps.CustomerHandler.Calls, authMid.Handle))

	router.GET("/api/v1/dashboard/stats",
		chain(deps.DashboardHandler.Stats, authMid.Handle))
	router.GET("/api/v1/dashboard/hourly",
		chain(deps.DashboardHandler.Hourly, authMid.Handle))
	router.GET("/api/v1/dashboard/durations",
		chain(deps.DashboardHandler.DurationDistribution, authMid.Handle))
	router.GET("/api/v1/dashboard/failure-reasons",
		chain(deps.DashboardHandler.FailureReasons, authMid.Handle))

	router.GET("/api/v1/deliveries/failed",
		chain(deps.DeliveryHandler.Failed, authMid.Handle))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
