// Package userinfo implements the user balance handlers on API Gateway proxy
// events: fetch, general update, add time, deduct time and the batch
// available-time report.
package userinfo

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"github.com/LCOGT/photonranch-userinfo/internal/auth"
	"github.com/LCOGT/photonranch-userinfo/internal/domain"
	"github.com/LCOGT/photonranch-userinfo/internal/logging"
	"github.com/LCOGT/photonranch-userinfo/internal/metrics"
)

// Operation names used in logs and metrics.
const (
	OpUserInfo       = "user_info"
	OpUpdateUserInfo = "update_user_info"
	OpAddTime        = "add_time"
	OpDeductTime     = "deduct_time"
	OpAvailableTime  = "available_time"
)

// Route paths.
const (
	PathUserInfo       = "/user-info"
	PathUpdateUserInfo = "/update-user-info"
	PathAddTime        = "/add-time"
	PathDeductTime     = "/deduct-time"
	PathAvailableTime  = "/available-time"
)

// Option configures Handlers.
type Option func(*Handlers)

// WithMetrics records request counts and latency on recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(h *Handlers) {
		h.metrics = recorder
	}
}

// WithClock overrides the time source used for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

// Handlers serves the userinfo operations against a single table.
type Handlers struct {
	repo     *domain.UserRepository
	policies auth.Policies
	logger   *logrus.Entry
	metrics  *metrics.Recorder
	now      func() time.Time
}

// NewHandlers wires the handlers to table. Nil policies allow every request.
func NewHandlers(table domain.Table, policies auth.Policies, logger *logrus.Entry, opts ...Option) (*Handlers, error) {
	if table == nil {
		return nil, errors.New("user table is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	h := &Handlers{
		repo:     domain.NewUserRepository(table),
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h, nil
}

type route struct {
	method  string
	handler func(*Handlers, context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

var routes = map[string]route{
	PathUserInfo:       {method: http.MethodGet, handler: (*Handlers).UserInfo},
	PathUpdateUserInfo: {method: http.MethodPost, handler: (*Handlers).UpdateUserInfo},
	PathAddTime:        {method: http.MethodPost, handler: (*Handlers).AddTime},
	PathDeductTime:     {method: http.MethodPost, handler: (*Handlers).DeductTime},
	PathAvailableTime:  {method: http.MethodPost, handler: (*Handlers).AvailableTime},
}

// Route dispatches an API Gateway proxy request by path. It is the single
// Lambda entrypoint; the per-operation methods may also be deployed alone.
func (h *Handlers) Route(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := routePath(req)

	r, ok := routes[path]
	if !ok {
		h.logger.WithFields(logging.Fields{
			"event":  "route_not_found",
			"path":   req.Path,
			"method": req.HTTPMethod,
		}).Warn("no handler for path")
		return respond(http.StatusNotFound, MsgRouteNotFound), nil
	}

	method := strings.ToUpper(req.HTTPMethod)
	switch method {
	case http.MethodOptions:
		return preflight(r.method), nil
	case r.method:
		return r.handler(h, ctx, req)
	default:
		resp := respond(http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		resp.Headers["Allow"] = r.method + ", " + http.MethodOptions
		return resp, nil
	}
}

// routePath resolves the route from the resource template first, then the
// concrete path. Segments are scanned from the end, skipping "{param}"
// placeholders, so stage prefixes ("/dev/add-time") and path parameters
// ("/user-info/{user_id}/{last_updated}") resolve to the same handler.
func routePath(req events.APIGatewayProxyRequest) string {
	for _, candidate := range []string{req.Resource, req.Path} {
		if path, ok := matchRoute(candidate); ok {
			return path
		}
	}
	return ""
}

func matchRoute(path string) (string, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		segment := segments[i]
		if segment == "" || strings.HasPrefix(segment, "{") {
			continue
		}
		if _, ok := routes["/"+segment]; ok {
			return "/" + segment, true
		}
	}
	return "", false
}

type call struct {
	ctx    context.Context
	req    events.APIGatewayProxyRequest
	logger *logrus.Entry
}

func (c *call) scope(key domain.Key) {
	c.logger = logging.Scoped(c.logger, logging.Context{UserID: key.UserID, LastUpdated: key.LastUpdated})
}

// serve runs fn and converts its outcome into a proxy response. Every path
// through it logs once and records metrics once.
func (h *Handlers) serve(ctx context.Context, op string, req events.APIGatewayProxyRequest, fn func(*call) (any, error)) (events.APIGatewayProxyResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := h.now()

	c := &call{
		ctx: ctx,
		req: req,
		logger: logging.Scoped(h.logger, logging.Context{
			RequestID: req.RequestContext.RequestID,
			Event:     op,
		}),
	}

	var resp events.APIGatewayProxyResponse
	body, err := fn(c)
	if err != nil {
		resp = failure(c.logger, op, err)
	} else {
		resp = respondJSON(c.logger, http.StatusOK, body)
		c.logger.WithField("status", resp.StatusCode).Info(op + " completed")
	}

	h.metrics.ObserveRequest(op, resp.StatusCode, h.now().Sub(start))
	return resp, nil
}
