// Package strip implements the strip-control command: resolve a Kasa smart
// strip by alias and switch every outlet on or off.
package strip
