//go:build rp2040 || rp2350

package main

import "slmtrig/timing"

// ModeConfig determines which host encoding and camera profile to run
type ModeConfig struct {
	// Binary selects the 24-byte record encoding; false runs the text menu
	Binary bool

	// Profile names the camera timing profile
	Profile string
}

// GetMode returns the build configuration. The binary encoding pairs with
// the Andor USB controller, the text console with the Hamamatsu one.
func GetMode() ModeConfig {
	return ModeConfig{
		Binary:  false,
		Profile: "hamamatsu",
	}
}

// profile resolves the configured profile, falling back to Hamamatsu
func (m ModeConfig) profile() timing.Profile {
	p, ok := timing.Lookup(m.Profile)
	if !ok {
		return timing.Hamamatsu()
	}
	return p
}
