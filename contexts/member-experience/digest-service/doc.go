// Package digest assembles periodic per-user summaries of delegate activity:
// veto deadlines approaching, votes the user's agent cast, and proposals that
// opened since the last digest. Generation runs as queue jobs so redelivery
// must be safe; a deterministic job key keeps duplicate deliveries from
// stacking duplicate digests.
package digest
