package api

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/greysana/kitchen-display-system/internal/model"
)

// GetOrders fetches today's board entries. Naive timestamps are read in the
// client's location.
func (c *Client) GetOrders(ctx context.Context) ([]model.OrderRecord, error) {
	var resp []OrderResponse
	if err := c.get(ctx, "/api/kds", nil, &resp); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}

	orders := make([]model.OrderRecord, len(resp))
	for i, o := range resp {
		orders[i] = o.ToOrderRecord(c.location)
	}
	return orders, nil
}

// GetStages returns the stage definitions, served from cache while fresh.
func (c *Client) GetStages(ctx context.Context) ([]model.StageDef, error) {
	c.stagesMu.Lock()
	if c.stagesCache != nil && c.stagesTTL > 0 && c.clock.Since(c.stagesFetched) < c.stagesTTL {
		defs := slices.Clone(c.stagesCache)
		c.stagesMu.Unlock()
		return defs, nil
	}
	c.stagesMu.Unlock()

	// Concurrent misses share one request.
	v, err, _ := c.stagesGroup.Do("stages", func() (any, error) {
		var resp []StageResponse
		if err := c.get(ctx, "/get-stages", nil, &resp); err != nil {
			return nil, fmt.Errorf("get stages: %w", err)
		}

		defs := make([]model.StageDef, len(resp))
		for i, s := range resp {
			defs[i] = s.ToStageDef()
		}

		c.stagesMu.Lock()
		c.stagesCache = defs
		c.stagesFetched = c.clock.Now()
		c.stagesMu.Unlock()
		return defs, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]model.StageDef)), nil
}

// InvalidateStages drops cached stage definitions.
func (c *Client) InvalidateStages() {
	c.stagesMu.Lock()
	defer c.stagesMu.Unlock()
	c.stagesCache = nil
}

// UpdateOrder applies a partial update to one board entry.
func (c *Client) UpdateOrder(ctx context.Context, id model.ID, patch OrderPatch) error {
	if id == "" {
		return fmt.Errorf("update order: empty id")
	}
	if err := c.post(ctx, "/api/kds/"+url.PathEscape(id.String()), patch, nil); err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	return nil
}

// TransitionOrder moves a domain order to done or cancel.
func (c *Client) TransitionOrder(ctx context.Context, orderID model.ID, to Transition) error {
	switch to {
	case TransitionDone, TransitionCancel:
	default:
		return fmt.Errorf("transition order %s: invalid state %q", orderID, to)
	}

	req := stateRequest{ID: idJSON(orderID), State: to}
	if err := c.post(ctx, "/update-order-state", req, nil); err != nil {
		return fmt.Errorf("transition order %s: %w", orderID, err)
	}
	return nil
}
