// Package server exposes the userinfo handlers over plain HTTP for local
// development, alongside health and metrics endpoints.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/LCOGT/photonranch-userinfo/internal/logging"
)

const (
	storePingTimeout  = 2 * time.Second
	readHeaderTimeout = 2 * time.Second
	listenPrefix      = ":"

	// RequestIDHeader carries the request id in and out of the server.
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// ProxyHandler handles an API Gateway proxy request.
type ProxyHandler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// StoreChecker reports whether the backing store is reachable.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// Server hosts the proxied handlers plus /healthz and /metrics.
type Server struct {
	server       *http.Server
	logger       *logrus.Entry
	handler      ProxyHandler
	storeChecker StoreChecker
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// NewServer builds a server on port. Every path other than /healthz and
// /metrics is converted to a proxy request and passed to handler. A nil
// metricsHandler leaves /metrics unregistered.
func NewServer(port int, handler ProxyHandler, storeChecker StoreChecker, metricsHandler http.Handler, logger *logrus.Entry) (*Server, error) {
	if handler == nil {
		return nil, errors.New("proxy handler is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:       logger,
		handler:      handler,
		storeChecker: storeChecker,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), srv.accessLog())

	engine.GET("/healthz", srv.handleHealth)
	if metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(metricsHandler))
	}
	engine.NoRoute(srv.handleProxy)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", listenPrefix, port),
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "http_listen",
		"addr":  s.server.Addr,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.WithFields(logging.Fields{
			"event":      "http_request",
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetString(requestIDKey),
		}).Debug("request served")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{Status: "ok"}

	if s.storeChecker == nil {
		resp.Status, resp.Store = "degraded", "error"
		s.logger.WithField("event", "health_store_missing").Warn("store checker is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), storePingTimeout)
		err := s.storeChecker.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status, resp.Store = "degraded", "error"
			s.logger.WithField("event", "health_store_error").WithError(err).Warn("store ping failed during health check")
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProxy(c *gin.Context) {
	req, err := toProxyRequest(c)
	if err != nil {
		s.logger.WithField("event", "http_read_error").WithError(err).Warn("failed to read request body")
		c.String(http.StatusBadRequest, "Invalid request.")
		return
	}

	resp, err := s.handler(c.Request.Context(), req)
	if err != nil {
		s.logger.WithField("event", "proxy_handler_error").WithError(err).Error("handler returned an error")
		c.String(http.StatusInternalServerError, "Internal server error.")
		return
	}

	writeProxyResponse(c, resp)
}

func toProxyRequest(c *gin.Context) (events.APIGatewayProxyRequest, error) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			return events.APIGatewayProxyRequest{}, fmt.Errorf("read body: %w", err)
		}
	}

	req := events.APIGatewayProxyRequest{
		Resource:                        c.Request.URL.Path,
		Path:                            c.Request.URL.Path,
		HTTPMethod:                      c.Request.Method,
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  c.GetString(requestIDKey),
			HTTPMethod: c.Request.Method,
			Path:       c.Request.URL.Path,
			Identity:   events.APIGatewayRequestIdentity{SourceIP: c.ClientIP()},
		},
	}

	for name, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		req.Headers[name] = values[0]
		req.MultiValueHeaders[name] = values
	}
	for name, values := range c.Request.URL.Query() {
		if len(values) == 0 {
			continue
		}
		req.QueryStringParameters[name] = values[0]
		req.MultiValueQueryStringParameters[name] = values
	}

	if utf8.Valid(body) {
		req.Body = string(body)
	} else {
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
	}

	return req, nil
}

func writeProxyResponse(c *gin.Context, resp events.APIGatewayProxyResponse) {
	for name, value := range resp.Headers {
		c.Header(name, value)
	}
	for name, values := range resp.MultiValueHeaders {
		for _, value := range values {
			c.Writer.Header().Add(name, value)
		}
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err == nil {
			body = decoded
		}
	}

	contentType := resp.Headers["Content-Type"]
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	c.Data(resp.StatusCode, contentType, body)
}
