// Package discover implements the discovery listing: broadcast the Kasa
// sysinfo probe and print every device that answers.
package discover
