// Package orchestrator composes fan-out, the shared pipeline entry point,
// the approval gate and the aggregator into a single Send operation. One
// orchestrator serves many concurrent logical requests; per-request state is
// confined to the Send call and the aggregator entry keyed by request id.
package orchestrator
