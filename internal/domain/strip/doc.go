// Package strip contains the domain types of the tools: a Strip with its
// Plugs, the Actor who asked for a change, and ParseSwitch which turns the
// command line token into a power state.
package strip
