// Package pipeline runs whisker tracing over a frame sequence.
//
// Responsibilities: frame sources, concurrent per-frame tracing (L4) on a
// bounded worker pool, ordered reassembly, and frame-by-frame
// correspondence (L5) as results arrive.
// Key types: FrameSource, Runner, Output, Stats.
//
// Dependency rule: pipeline may depend on L1-L5 and monitoring.
// Persistence belongs to the storage packages and the cmd binaries.
package pipeline
