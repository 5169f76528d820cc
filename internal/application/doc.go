// Package application wires configuration into the paper catalog, layout
// planner, renderer, exporter, HTTP handlers and server, keeping the main
// package focused on CLI parsing and orchestration.
package application
