// Package l2field owns Layer 2 (Response field) of the whisker data model.
//
// Responsibilities: the oriented line detector and the response stack it
// produces over a bank of offsets, angles and radii.
// Key types: Sampler, Stack, SamplerConfig.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2field
