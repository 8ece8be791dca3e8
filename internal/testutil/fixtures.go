package testutil

// SamplePlan is a markdown plan with a dropped preamble and three tasks.
const SamplePlan = `Notes for the week, not a task.

# Fix the login redirect
See [design](/doc/3f2a-9bc1) for details.

## Add retry to webhook sender
Back off exponentially.

### Update the README
`

// SampleTranscript is a Claude Code transcript whose usage sums to 10 raw
// input, 7 output, 3 cache read and 2 cache creation tokens.
const SampleTranscript = `{"type":"user","message":{"role":"user","content":"go"}}
{"type":"assistant","message":{"usage":{"input_tokens":4,"output_tokens":3,"cache_read_input_tokens":2,"cache_creation_input_tokens":1}}}
{"type":"assistant","message":{"usage":{"input_tokens":6,"output_tokens":4,"cache_read_input_tokens":1,"cache_creation_input_tokens":1}}}
`
