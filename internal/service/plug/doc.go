// Package plug implements the plug-control command: resolve a single Kasa
// outlet by alias, either a standalone smart plug or one child of a strip,
// and switch it on, off or blink it for a while.
package plug
