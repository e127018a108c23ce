//go:build !linux && !darwin

package main

import "github.com/kbd/keymapper/internal/focus"

func platformProbes() []focus.Probe {
	return []focus.Probe{focus.NewWin32Probe()}
}
