// Package counter keeps best-effort operational counters in Redis. A
// failed increment never affects the request that produced it; the
// counters exist for the ops surface, not for billing truth.
package counter

import (
	"context"
	"fmt"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/cache"
)

const (
	webhookOutcomesKey = "webhooks:counters:outcomes"
	chargeOutcomesKey  = "billing:counters:outcomes"
)

// AddWebhookOutcome increments the counter for one ingested delivery,
// keyed by source and outcome (processed, duplicate, ignored, rejected).
func AddWebhookOutcome(source, outcome string) error {
	ctx := context.Background()
	field := fmt.Sprintf("%s:%s", source, outcome)
	return cache.GetClient().HIncrBy(ctx, webhookOutcomesKey, field, 1).Err()
}

// AddChargeOutcome increments the counter for one resolved charge, keyed
// by its final status.
func AddChargeOutcome(status string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, chargeOutcomesKey, status, 1).Err()
}

// Snapshot returns all counters for the ops endpoint.
func Snapshot() (map[string]map[string]string, error) {
	ctx := context.Background()

	webhooks, err := cache.GetClient().HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return nil, err
	}
	charges, err := cache.GetClient().HGetAll(ctx, chargeOutcomesKey).Result()
	if err != nil {
		return nil, err
	}

	return map[string]map[string]string{
		"webhooks": webhooks,
		"charges":  charges,
	}, nil
}
