package gatewayclient

import "github.com/corvidlabs/missionbridge/internal/domain"

// baseSubscriptionEvents is the always-subscribed event set
// "Subscription plan").
var baseSubscriptionEvents = []string{"agent", "chat", "diagnostic", "heartbeat", "health"}

// SupportsSubscribe reports whether the gateway advertises a "subscribe"
// method, or advertises no methods at all (treated as supported).
func SupportsSubscribe(features *domain.GatewayFeatures) bool {
	if features == nil || len(features.Methods) == 0 {
		return true
	}
	for _, m := range features.Methods {
		if m == "subscribe" {
			return true
		}
	}
	return false
}

// ComputeSubscriptionPlan returns the deduplicated union of the base event
// set and whatever the gateway advertises in features.events.
func ComputeSubscriptionPlan(features *domain.GatewayFeatures) []string {
	seen := make(map[string]struct{}, len(baseSubscriptionEvents))
	plan := make([]string, 0, len(baseSubscriptionEvents))
	for _, e := range baseSubscriptionEvents {
		if _, ok := seen[e]; !ok {
			seen[e] = struct{}{}
			plan = append(plan, e)
		}
	}
	if features != nil {
		for _, e := range features.Events {
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				plan = append(plan, e)
			}
		}
	}
	return plan
}

// PlanIncludesPresence reports whether "presence" is already part of plan.
func PlanIncludesPresence(plan []string) bool {
	for _, e := range plan {
		if e == "presence" {
			return true
		}
	}
	return false
}
