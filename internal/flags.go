package internal

import "strings"

// EffectFlags marks what the commit phase has to do with a node. They are
// cleared and recomputed on every render pass.
type EffectFlags uint32

const (
	NoEffect      EffectFlags = 0
	PerformedWork EffectFlags = 1 << iota
	Placement
	UpdateEffect
	Deletion
	Callback
	RefEffect
	Snapshot
	Passive
	DidCapture
	Incomplete
	ShouldCapture

	HostEffectMask = PerformedWork | Placement | UpdateEffect | Deletion | Callback | RefEffect | Snapshot | Passive | DidCapture
)

var flagNames = []struct {
	flag EffectFlags
	name string
}{
	{Placement, "Placement"},
	{UpdateEffect, "Update"},
	{Deletion, "Deletion"},
	{Callback, "Callback"},
	{RefEffect, "Ref"},
	{Snapshot, "Snapshot"},
	{Passive, "Passive"},
	{DidCapture, "DidCapture"},
	{Incomplete, "Incomplete"},
	{ShouldCapture, "ShouldCapture"},
}

func (f EffectFlags) Has(flag EffectFlags) bool {
	return f&flag != 0
}

func (f *EffectFlags) set(flag EffectFlags) {
	*f |= flag
}

func (f *EffectFlags) clear(flag EffectFlags) {
	*f &^= flag
}

func (f *EffectFlags) replace(old, new EffectFlags) {
	*f = (*f &^ old) | new
}

// hasSideEffects reports whether the node needs to be on an effect list.
func (f EffectFlags) hasSideEffects() bool {
	return f > PerformedWork
}

func (f EffectFlags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}
