package orch

import (
	"sync"

	"github.com/yanun0323/logs"
)

// KillSwitch is a global halt flag blocking new submissions until cleared.
// Open orders are unaffected by a trip.
type KillSwitch struct {
	mu      sync.Mutex
	tripped bool
	reason  string
}

// NewKillSwitch creates a cleared kill switch.
func NewKillSwitch() *KillSwitch {
	return &KillSwitch{}
}

// Trip engages the switch. The first trip's reason is kept.
func (k *KillSwitch) Trip(reason string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.tripped {
		return
	}
	k.tripped = true
	k.reason = reason
	logs.Warnf("kill switch tripped: %s", reason)
}

// Clear disengages the switch.
func (k *KillSwitch) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.tripped {
		return
	}
	k.tripped = false
	k.reason = ""
	logs.Info("kill switch cleared")
}

// Tripped returns the flag and, when tripped, the reason.
func (k *KillSwitch) Tripped() (bool, string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tripped, k.reason
}
