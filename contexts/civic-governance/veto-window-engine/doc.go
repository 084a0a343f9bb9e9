// Package vetoengine implements the veto window engine inside the
// civic-governance context.
//
// The module owns the vote lifecycle for delegated agents: agent vote
// casting, signature-gated human overrides, the derived CAST/FINAL/OVERRIDDEN
// state classification, and the pending-veto discovery query that feeds
// digests and dashboards. Vote state is never stored as a status column; it
// is derived from the proposal deadline and the override flag at read time.
package vetoengine
