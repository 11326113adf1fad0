package userinfo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/LCOGT/photonranch-userinfo/internal/auth"
	"github.com/LCOGT/photonranch-userinfo/internal/domain"
	"github.com/LCOGT/photonranch-userinfo/internal/numeric"
)

// UserInfo returns the record at (user_id, last_updated) taken from the path
// parameters or query string. Without last_updated it returns the newest
// record for user_id.
func (h *Handlers) UserInfo(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.serve(ctx, OpUserInfo, req, func(c *call) (any, error) {
		userID := queryParam(c.req, domain.FieldUserID)
		if userID == "" {
			return nil, invalid(domain.FieldUserID + " is required")
		}
		lastUpdated := queryParam(c.req, domain.FieldLastUpdated)
		c.scope(domain.Key{UserID: userID, LastUpdated: lastUpdated})

		var (
			found  bool
			record domain.UserRecord
			err    error
		)
		if lastUpdated == "" {
			found, record, err = h.repo.Latest(c.ctx, userID)
		} else {
			found, record, err = h.repo.GetUserInfo(c.ctx, domain.Key{UserID: userID, LastUpdated: lastUpdated})
		}
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, domain.ErrNotFound
		}

		return record.Plain(), nil
	})
}

// UpdateUserInfo merges the body fields into the stored record and moves it
// to the body's last_updated. available_time is rejected outright.
func (h *Handlers) UpdateUserInfo(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.serve(ctx, OpUpdateUserInfo, req, func(c *call) (any, error) {
		if err := auth.Check(c.ctx, h.policies.Update, c.req); err != nil {
			return nil, err
		}

		fields, err := decodeBody(c.req)
		if err != nil {
			return nil, err
		}
		if _, ok := fields[domain.FieldAvailableTime]; ok {
			return nil, domain.ErrProtectedField
		}

		t, err := targetFromBody(fields)
		if err != nil {
			return nil, err
		}
		c.scope(t.key)

		existing, err := h.lookup(c.ctx, t.lookup)
		if err != nil {
			return nil, err
		}

		merged := existing.Clone()
		for name, value := range fields {
			if name == domain.FieldPreviousLastUpdated {
				continue
			}
			merged[name] = value
		}

		return h.repo.Replace(c.ctx, t.lookup, merged)
	})
}

// AddTime credits time_amount to the user's balance, starting from zero when
// no balance is stored.
func (h *Handlers) AddTime(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.serve(ctx, OpAddTime, req, func(c *call) (any, error) {
		if err := auth.Check(c.ctx, h.policies.AddTime, c.req); err != nil {
			return nil, err
		}

		tr, err := h.decodeTimeRequest(c)
		if err != nil {
			return nil, err
		}

		existing, err := h.lookup(c.ctx, tr.lookup)
		if err != nil {
			return nil, err
		}

		updated := existing.Clone()
		updated.SetLastUpdated(tr.key.LastUpdated)
		if balance, ok := existing.AvailableTime(); ok {
			updated.SetAvailableTime(balance.Add(tr.amount))
		} else {
			updated.SetAvailableTime(tr.amount)
		}

		ack, err := h.repo.Replace(c.ctx, tr.lookup, updated)
		if err != nil {
			return nil, err
		}

		h.metrics.ObserveTimeMoved(OpAddTime, tr.amount.InexactFloat64())
		return ack, nil
	})
}

// DeductTime debits time_amount from the user's balance. A missing balance or
// one smaller than time_amount is rejected without writing.
func (h *Handlers) DeductTime(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.serve(ctx, OpDeductTime, req, func(c *call) (any, error) {
		if err := auth.Check(c.ctx, h.policies.DeductTime, c.req); err != nil {
			return nil, err
		}

		tr, err := h.decodeTimeRequest(c)
		if err != nil {
			return nil, err
		}

		existing, err := h.lookup(c.ctx, tr.lookup)
		if err != nil {
			return nil, err
		}

		balance, ok := existing.AvailableTime()
		if !ok || tr.amount.GreaterThan(balance) {
			return nil, domain.ErrInsufficientTime
		}

		updated := existing.Clone()
		updated.SetLastUpdated(tr.key.LastUpdated)
		updated.SetAvailableTime(balance.Sub(tr.amount))

		ack, err := h.repo.Replace(c.ctx, tr.lookup, updated)
		if err != nil {
			return nil, err
		}

		h.metrics.ObserveTimeMoved(OpDeductTime, tr.amount.InexactFloat64())
		return ack, nil
	})
}

// Allocation is one user's entry in the available-time report.
type Allocation struct {
	AvailableTime any    `json:"available_time"`
	LastUpdated   string `json:"last_updated"`
}

// AvailableTime reports the current balance and its timestamp for each id in
// the body's user_ids. Users without a record are omitted; a stored record
// without a balance reports zero.
func (h *Handlers) AvailableTime(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.serve(ctx, OpAvailableTime, req, func(c *call) (any, error) {
		fields, err := decodeBody(c.req)
		if err != nil {
			return nil, err
		}

		userIDs, err := userIDsFromBody(fields)
		if err != nil {
			return nil, err
		}

		report := make(map[string]Allocation, len(userIDs))
		for _, userID := range userIDs {
			found, record, err := h.repo.Latest(c.ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("available time for %s: %w", userID, err)
			}
			if !found {
				continue
			}

			balance, _ := record.AvailableTime()
			report[userID] = Allocation{
				AvailableTime: numeric.Plain(balance),
				LastUpdated:   record.Key().LastUpdated,
			}
		}

		c.logger.WithField("users", len(userIDs)).Debug("available time report built")
		return report, nil
	})
}

func (h *Handlers) decodeTimeRequest(c *call) (timeRequest, error) {
	fields, err := decodeBody(c.req)
	if err != nil {
		return timeRequest{}, err
	}

	tr, err := timeRequestFromBody(fields)
	if err != nil {
		return timeRequest{}, err
	}
	c.scope(tr.key)

	return tr, nil
}

// lookup returns the record at key or ErrNotFound.
func (h *Handlers) lookup(ctx context.Context, key domain.Key) (domain.UserRecord, error) {
	found, record, err := h.repo.GetUserInfo(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func userIDsFromBody(fields map[string]any) ([]string, error) {
	raw, ok := fields["user_ids"].([]any)
	if !ok || len(raw) == 0 {
		return nil, invalid("user_ids must be a non-empty list")
	}

	ids := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		id, ok := item.(string)
		if !ok || strings.TrimSpace(id) == "" {
			return nil, invalid("user_ids must contain non-empty strings")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}
