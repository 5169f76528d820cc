// Package layout computes how fixed-size photos are packed onto paper sheets.
// Planning is a pure function of the paper, the photo size, the margin, the
// spacing and the requested count: it holds no state and performs no I/O, so
// a plan is simply recomputed whenever any of those inputs change.
package layout
