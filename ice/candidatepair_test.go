package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairPriority(t *testing.T) {
	local, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1111, "10.0.0.1", 1111, 65535, nil)
	remote, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 2222, "10.0.0.2", 2222, 100, nil)

	controlling := pairPriority(local, remote, ControllingRole)
	// The controlled peer sees the same pair with local and remote swapped.
	controlled := pairPriority(remote, local, ControlledRole)

	// Both sides must compute the same numeric priority for the same
	// underlying pair (spec.md §3), even though each plugs its own
	// candidate into a different slot of the formula.
	assert.Equal(t, controlling, controlled)

	g, d := uint64(local.Priority()), uint64(remote.Priority())
	min, max := d, g
	if g < d {
		min, max = g, d
	}
	expected := (uint64(1)<<32)*min + 2*max
	if g > d {
		expected++
	}
	assert.Equal(t, expected, controlling)
}

func TestCheckPruneKeyDedup(t *testing.T) {
	var cl Checklist
	local, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1111, "10.0.0.1", 1111, 65535, nil)
	remoteA, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 2222, "10.0.0.2", 2222, 65535, nil)
	remoteB := remoteA
	remoteB.port = 2222 // same address tuple as remoteA

	p1 := cl.Insert(local, remoteA, ControllingRole)
	p2 := cl.Insert(local, remoteB, ControllingRole)

	assert.Equal(t, 1, cl.Len(), "pairs sharing a pruning key must collapse to one")
	assert.Equal(t, p1.ID, cl.Pairs()[0].ID)
	_ = p2
}

func TestNewCandidatePairFrozenOnSharedFoundation(t *testing.T) {
	var cl Checklist
	// Foundation depends only on (type, base address, stun server), not
	// port, so two candidates on the same base IP but different ports
	// are foundation-equivalent (spec.md §3).
	local1, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1111, "10.0.0.1", 1111, 65535, nil)
	local2, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1111, "10.0.0.1", 1111, 65535, nil)
	remote, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 2222, "10.0.0.2", 2222, 65535, nil)
	remote2, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 3333, "10.0.0.2", 3333, 65535, nil)

	first := cl.Insert(local1, remote, ControllingRole)
	assert.Equal(t, PairStateWaiting, first.State, "the first pair of a foundation group starts waiting")

	second := cl.Insert(local2, remote2, ControllingRole)
	assert.Equal(t, PairStateFrozen, second.State, "a pair sharing an existing foundation tuple starts frozen")
}
