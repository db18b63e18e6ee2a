// Package common holds helpers shared by the strip, plug and discover services.
//
// It opens a run session (configuration, logging, single-instance guard,
// actor detection), resolves an alias to a connected Kasa device through the
// static device list or discovery, and converts device replies to domain types.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
