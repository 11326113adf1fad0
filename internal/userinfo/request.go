package userinfo

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/shopspring/decimal"

	"github.com/LCOGT/photonranch-userinfo/internal/domain"
	"github.com/LCOGT/photonranch-userinfo/internal/numeric"
)

// decodeBody parses the request body as a JSON object. Numbers become
// decimals so they reach the store without float rounding.
func decodeBody(req events.APIGatewayProxyRequest) (map[string]any, error) {
	raw := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, invalid("body is not valid base64")
		}
		raw = string(decoded)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, invalid("body is required")
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, invalid("body must be a JSON object")
	}
	if fields == nil {
		return nil, invalid("body must be a JSON object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, invalid("body must contain a single JSON object")
	}

	converted, err := numeric.FromJSON(fields)
	if err != nil {
		return nil, invalid(err.Error())
	}

	return converted.(map[string]any), nil
}

func stringField(fields map[string]any, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return "", invalid(name + " is required")
	}

	value, ok := raw.(string)
	if !ok {
		return "", invalid(name + " must be a string")
	}
	if strings.TrimSpace(value) == "" {
		return "", invalid(name + " is required")
	}

	return value, nil
}

// target is the key a mutation writes to plus the key it reads and deletes.
// Without previous_last_updated both are the same key.
type target struct {
	key    domain.Key
	lookup domain.Key
}

func targetFromBody(fields map[string]any) (target, error) {
	userID, err := stringField(fields, domain.FieldUserID)
	if err != nil {
		return target{}, err
	}
	lastUpdated, err := stringField(fields, domain.FieldLastUpdated)
	if err != nil {
		return target{}, err
	}

	t := target{
		key:    domain.Key{UserID: userID, LastUpdated: lastUpdated},
		lookup: domain.Key{UserID: userID, LastUpdated: lastUpdated},
	}

	if _, ok := fields[domain.FieldPreviousLastUpdated]; ok {
		previous, err := stringField(fields, domain.FieldPreviousLastUpdated)
		if err != nil {
			return target{}, err
		}
		t.lookup.LastUpdated = previous
	}

	return t, nil
}

type timeRequest struct {
	target
	amount decimal.Decimal
}

func timeRequestFromBody(fields map[string]any) (timeRequest, error) {
	t, err := targetFromBody(fields)
	if err != nil {
		return timeRequest{}, err
	}

	raw, ok := fields[domain.FieldTimeAmount]
	if !ok || raw == nil {
		return timeRequest{}, invalid(domain.FieldTimeAmount + " is required")
	}
	amount, ok := numeric.ToDecimal(raw)
	if !ok {
		return timeRequest{}, invalid(domain.FieldTimeAmount + " must be a number")
	}
	if amount.IsNegative() {
		return timeRequest{}, invalid(domain.FieldTimeAmount + " must not be negative")
	}

	return timeRequest{target: t, amount: amount}, nil
}

// queryParam reads name from the path parameters, then the query string.
func queryParam(req events.APIGatewayProxyRequest, name string) string {
	if v := strings.TrimSpace(req.PathParameters[name]); v != "" {
		return v
	}
	if v := strings.TrimSpace(req.QueryStringParameters[name]); v != "" {
		return v
	}
	if values := req.MultiValueQueryStringParameters[name]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}
