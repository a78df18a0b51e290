// Package l1image owns Layer 1 (Images) of the whisker data model.
//
// Responsibilities: the sample grid every later layer reads, decoding of
// still frames from disk, and extraction of dark connected objects.
// Key types: Image, Contour, ObjectMap.
//
// Dependency rule: L1 depends on no other whisk layer.
package l1image
