// Package storage holds the paper catalog: the named sheet sizes photos can be
// laid out on. The built-in profiles can be extended at runtime.
package storage
