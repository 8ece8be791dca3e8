// Package tasks defines the task record, its lifecycle states, and the
// markdown parser that produces tasks with deterministic identities.
//
// # Identity
//
// A task_id is derived only from the normalized content of its description:
//
//	{slug}_{hash}
//
// where slug is the first five normalized words joined by underscores and
// hash is the first 12 hex digits of the SHA-256 of the normalized text.
// Markdown formatting and whitespace do not take part in the identity, so
// re-parsing a document that was only reformatted reproduces the same ids.
//
// # Segmentation
//
// Every line whose trimmed form starts with '#' opens a new task. The task
// description is the verbatim text from that line up to the next header.
// Text before the first header is dropped.
//
// # Lifecycle
//
//	queued -> in_progress -> done | error
//	queued | in_progress  -> cancelled
//	in_progress           -> queued (reset)
//
// done, error and cancelled are terminal.
package tasks
