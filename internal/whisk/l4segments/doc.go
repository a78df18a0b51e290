// Package l4segments owns Layer 4 (Segments) of the whisker data model.
//
// Responsibilities: the whisker segment value type and the per-frame
// segment table, the ridge-following tracer, and frame-level segment
// finding.
// Key types: Segment, Sample, Table, Tracer, TracingConfig.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
// No file or database code is allowed in this package.
package l4segments
