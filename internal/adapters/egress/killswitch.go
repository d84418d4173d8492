package egress

import (
	"context"
	"sync/atomic"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/ports/gateways"
)

// KillSwitch blocks every remittance while engaged.
type KillSwitch struct {
	next    gateways.EgressProvider
	engaged atomic.Bool
}

func NewKillSwitch(next gateways.EgressProvider, engaged bool) *KillSwitch {
	k := &KillSwitch{next: next}
	k.engaged.Store(engaged)
	return k
}

func (k *KillSwitch) Engage()  { k.engaged.Store(true) }
func (k *KillSwitch) Release() { k.engaged.Store(false) }

func (k *KillSwitch) Engaged() bool {
	return k.engaged.Load()
}

func (k *KillSwitch) Remit(ctx context.Context, instr gateways.Instruction) (*gateways.Receipt, error) {
	if k.engaged.Load() {
		return nil, apperrors.New(apperrors.CodeKillSwitch, "egress is disabled by the kill switch")
	}
	return k.next.Remit(ctx, instr)
}

var (
	_ gateways.EgressProvider = (*KillSwitch)(nil)
	_ gateways.EgressProvider = (*Sandbox)(nil)
	_ gateways.EgressProvider = (*HTTPRail)(nil)
)
