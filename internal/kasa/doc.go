// Package kasa is a client for the local protocol of TP-Link Kasa plugs and
// strips: JSON commands scrambled with an autokey XOR cipher, sent over TCP
// port 9999 with a 4-byte length prefix, or broadcast over UDP without the
// prefix for discovery.
//
// Strip outlets are addressed by adding a child_ids context to the command.
package kasa
