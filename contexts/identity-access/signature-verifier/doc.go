// Package sigverify checks user request signatures for write paths that need
// proof the owning human, not their agent, issued the call. Verification is
// ed25519 over the exact serialized request body; callers get a pass/fail
// verdict plus lookup errors, nothing else.
package sigverify
