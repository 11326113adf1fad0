package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type stubStoreChecker struct {
	err error
}

func (s stubStoreChecker) Ping(context.Context) error {
	return s.err
}

type recordingHandler struct {
	requests []events.APIGatewayProxyRequest
	resp     events.APIGatewayProxyResponse
	err      error
}

func (r *recordingHandler) handle(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	r.requests = append(r.requests, req)
	return r.resp, r.err
}

func newTestServer(t *testing.T, handler *recordingHandler, checker StoreChecker, metricsHandler http.Handler) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, _ := logtest.NewNullLogger()
	srv, err := NewServer(0, handler.handle, checker, metricsHandler, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	return srv
}

func TestNewServerRequiresHandler(t *testing.T) {
	if _, err := NewServer(0, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
}

func TestHealthHandlerOK(t *testing.T) {
	server := newTestServer(t, &recordingHandler{}, stubStoreChecker{}, nil)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}
}

func TestHealthHandlerStoreError(t *testing.T) {
	for name, checker := range map[string]StoreChecker{
		"ping error":      stubStoreChecker{err: errors.New("table missing")},
		"missing checker": nil,
	} {
		t.Run(name, func(t *testing.T) {
			server := newTestServer(t, &recordingHandler{}, checker, nil)

			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rr.Code != http.StatusOK {
				t.Fatalf("expected HTTP 200, got %d", rr.Code)
			}
			if body := strings.TrimSpace(rr.Body.String()); body != `{"status":"degraded","store":"error"}` {
				t.Fatalf("unexpected body: %s", body)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("userinfo_requests_total 1\n"))
	})
	server := newTestServer(t, &recordingHandler{}, stubStoreChecker{}, metrics)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "userinfo_requests_total") {
		t.Fatalf("unexpected metrics response %d: %s", rr.Code, rr.Body.String())
	}
}

func TestProxyConvertsRequestAndResponse(t *testing.T) {
	handler := &recordingHandler{resp: events.APIGatewayProxyResponse{
		StatusCode: http.StatusCreated,
		Headers: map[string]string{
			"Access-Control-Allow-Origin": "*",
			"Content-Type":                "application/json",
		},
		Body: `{"ok":true}`,
	}}
	server := newTestServer(t, handler, stubStoreChecker{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/add-time?user_id=u1&tag=a&tag=b", strings.NewReader(`{"time_amount":5}`))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set(RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected proxied status 201, got %d", rr.Code)
	}
	if rr.Body.String() != `{"ok":true}` {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected proxied headers, got %v", rr.Header())
	}
	if rr.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", rr.Header().Get(RequestIDHeader))
	}

	if len(handler.requests) != 1 {
		t.Fatalf("expected one proxied request, got %d", len(handler.requests))
	}
	got := handler.requests[0]
	if got.HTTPMethod != http.MethodPost || got.Path != "/add-time" {
		t.Fatalf("unexpected method/path %s %s", got.HTTPMethod, got.Path)
	}
	if got.Body != `{"time_amount":5}` || got.IsBase64Encoded {
		t.Fatalf("unexpected body %q (base64=%v)", got.Body, got.IsBase64Encoded)
	}
	if got.Headers["Authorization"] != "Bearer token" {
		t.Fatalf("expected authorization header, got %v", got.Headers)
	}
	if got.QueryStringParameters["user_id"] != "u1" {
		t.Fatalf("expected query parameter, got %v", got.QueryStringParameters)
	}
	if len(got.MultiValueQueryStringParameters["tag"]) != 2 {
		t.Fatalf("expected multi-value query, got %v", got.MultiValueQueryStringParameters)
	}
	if got.RequestContext.RequestID != "req-42" {
		t.Fatalf("expected request id in context, got %q", got.RequestContext.RequestID)
	}
}

func TestProxyGeneratesRequestIDAndEncodesBinaryBodies(t *testing.T) {
	handler := &recordingHandler{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "plain"}}
	server := newTestServer(t, handler, stubStoreChecker{}, nil)

	binary := []byte{0xff, 0xfe, 0x00}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/update-user-info", strings.NewReader(string(binary))))

	got := handler.requests[0]
	if !got.IsBase64Encoded || got.Body != base64.StdEncoding.EncodeToString(binary) {
		t.Fatalf("expected base64 body, got %q (base64=%v)", got.Body, got.IsBase64Encoded)
	}
	if got.RequestContext.RequestID == "" || rr.Header().Get(RequestIDHeader) != got.RequestContext.RequestID {
		t.Fatalf("expected generated request id to match header, got %q", got.RequestContext.RequestID)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain default, got %s", ct)
	}
}

func TestProxyHandlerErrorIsInternalError(t *testing.T) {
	handler := &recordingHandler{err: errors.New("boom")}
	server := newTestServer(t, handler, stubStoreChecker{}, nil)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user-info", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected HTTP 500, got %d", rr.Code)
	}
}

func TestShutdownNilServer(t *testing.T) {
	var server *Server
	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil server shutdown to be a no-op, got %v", err)
	}
}
