// Package l3seeds owns Layer 3 (Seeds) of the whisker data model.
//
// Responsibilities: single-point seed estimation, the accumulated seed
// rasters (hit histogram, slope, statistic) over every pixel, a lattice or
// a contour, and selection of seed vectors from those rasters.
// Key types: Seed, Detector, Fields.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3seeds
