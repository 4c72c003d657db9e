// Package textutil provides the text helpers shared by the resolver, the
// transports and the CLI.
//
// Endpoint names arrive from drivers in whatever Unicode form the device
// firmware reports, so every comparison goes through NormalizeName, which
// trims surrounding space and applies NFC composition. SanitizeToken turns
// a name into a lowercase token suitable for stable keys.
package textutil
