// Package render rasterizes sheet plans. Each photo is cover-cropped to the
// print size once and then stamped into the sheet grid at the configured DPI.
package render
