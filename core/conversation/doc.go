// Package conversation holds the data model shared by the orchestration
// engine: route tags, committed turns, per-thread checkpoints and the typed
// per-request state threaded through every state-machine stage.
package conversation
