// Package registry loads prompt definitions from disk or the embedded set
// and indexes them by name.
package registry
