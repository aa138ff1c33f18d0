// Package aggregate owns the mutable state of one logical request while its
// targets run: per-target status, accumulated text, tool calls, counts and
// timestamps. All mutation funnels through Aggregator.Update, which applies
// each event atomically with respect to concurrent callers, so any
// interleaving of target events leaves per-target state consistent.
package aggregate
