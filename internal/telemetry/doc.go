// Package telemetry turns Claude Code transcripts into token snapshots and
// carries them to task completions.
//
// The capture hook runs when the completion command executes: it sums
// message.usage over the session transcript and drops the snapshot into the
// side channel. The queue's Complete consumes it and records a row in the
// SQLite ledger, which backs the weekly usage summary.
package telemetry
