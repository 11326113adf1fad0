// Package auth decides whether a request may perform a mutating operation.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/LCOGT/photonranch-userinfo/internal/config"
)

var (
	// ErrUnauthenticated is returned when the request carries no credentials.
	ErrUnauthenticated = errors.New("missing credentials")
	// ErrForbidden is returned when the credentials do not grant the operation.
	ErrForbidden = errors.New("forbidden")
)

// Policy authorizes a single request.
type Policy interface {
	Authorize(ctx context.Context, req events.APIGatewayProxyRequest) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, req events.APIGatewayProxyRequest) error

// Authorize calls f.
func (f PolicyFunc) Authorize(ctx context.Context, req events.APIGatewayProxyRequest) error {
	return f(ctx, req)
}

// AllowAll admits every request.
type AllowAll struct{}

// Authorize always succeeds.
func (AllowAll) Authorize(context.Context, events.APIGatewayProxyRequest) error {
	return nil
}

// BearerToken admits requests whose Authorization header carries the token.
type BearerToken struct {
	token string
}

// NewBearerToken returns a policy matching token. An empty token yields a
// policy that rejects every request.
func NewBearerToken(token string) BearerToken {
	return BearerToken{token: strings.TrimSpace(token)}
}

// Authorize checks the Authorization header.
func (b BearerToken) Authorize(_ context.Context, req events.APIGatewayProxyRequest) error {
	header := headerValue(req, "Authorization")
	if header == "" {
		return ErrUnauthenticated
	}

	scheme, presented, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ErrUnauthenticated
	}

	presented = strings.TrimSpace(presented)
	if b.token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(b.token)) != 1 {
		return ErrForbidden
	}

	return nil
}

// Policies groups the per-operation policies.
type Policies struct {
	Update     Policy
	AddTime    Policy
	DeductTime Policy
}

// AllowAllPolicies admits every mutation.
func AllowAllPolicies() Policies {
	return Policies{Update: AllowAll{}, AddTime: AllowAll{}, DeductTime: AllowAll{}}
}

// FromConfig builds bearer policies for each configured token and AllowAll
// for the rest.
func FromConfig(cfg config.Config) Policies {
	return Policies{
		Update:     tokenOrAllow(cfg.UpdateUserToken),
		AddTime:    tokenOrAllow(cfg.AddTimeToken),
		DeductTime: tokenOrAllow(cfg.DeductTimeToken),
	}
}

func tokenOrAllow(token string) Policy {
	if strings.TrimSpace(token) == "" {
		return AllowAll{}
	}
	return NewBearerToken(token)
}

// Check runs policy, treating nil as AllowAll.
func Check(ctx context.Context, policy Policy, req events.APIGatewayProxyRequest) error {
	if policy == nil {
		return nil
	}
	return policy.Authorize(ctx, req)
}

func headerValue(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	for k, v := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}
