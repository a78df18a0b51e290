// Package l5tracks owns Layer 5 (Tracks) of the whisker data model.
//
// Responsibilities: optimal assignment between consecutive frames'
// segments, whisker shape distance, the coherence sequence decoder
// (Viterbi), and the linker that turns per-frame segments into tracks.
// Key types: Assignment, HMM, ViterbiResult, Linker, Tracks.
//
// Dependency rule: L5 may depend on L1-L4.
// No SQL/database code is allowed in this package.
package l5tracks
