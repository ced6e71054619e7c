package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecklistOrderedByPriorityDescending(t *testing.T) {
	var cl Checklist
	low, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1, "10.0.0.1", 1, 1, nil)
	high, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1, "10.0.0.1", 1, 65535, nil)
	remote, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 2, "10.0.0.2", 2, 65535, nil)
	remote2, _ := NewCandidate(CandidateTypeHost, "10.0.0.3", 3, "10.0.0.3", 3, 65535, nil)

	cl.Insert(low, remote, ControllingRole)
	cl.Insert(high, remote2, ControllingRole)

	pairs := cl.Pairs()
	assert.Len(t, pairs, 2)
	assert.GreaterOrEqual(t, pairs[0].Priority, pairs[1].Priority, "checklist must stay sorted by priority descending")
}

func TestChecklistFindByTransaction(t *testing.T) {
	var cl Checklist
	local, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1, "10.0.0.1", 1, 65535, nil)
	remote, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 2, "10.0.0.2", 2, 65535, nil)
	pair := cl.Insert(local, remote, ControllingRole)

	var tid [12]byte
	tid[0] = 0xAB
	pair.State = PairStateInProgress
	pair.transactionID = tid

	found := cl.FindByTransaction(tid)
	assert.Same(t, pair, found)

	var other [12]byte
	other[0] = 0xCD
	assert.Nil(t, cl.FindByTransaction(other))
}

func TestChecklistHighestWaitingSucceeded(t *testing.T) {
	var cl Checklist
	localA, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1, "10.0.0.1", 1, 1, nil)
	localB, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1, "10.0.0.1", 1, 65535, nil)
	remoteA, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 2, "10.0.0.2", 2, 65535, nil)
	remoteB, _ := NewCandidate(CandidateTypeHost, "10.0.0.3", 3, "10.0.0.3", 3, 65535, nil)

	low := cl.Insert(localA, remoteA, ControllingRole)
	high := cl.Insert(localB, remoteB, ControllingRole)

	assert.Same(t, high, cl.HighestWaiting())

	low.State = PairStateSucceeded
	high.State = PairStateFailed
	assert.Same(t, low, cl.HighestSucceeded())
	assert.Nil(t, cl.HighestWaiting())
}

func TestChecklistUnfreezeOneFrozenPair(t *testing.T) {
	var cl Checklist
	local1, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1, "10.0.0.1", 1, 65535, nil)
	local2, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1, "10.0.0.1", 1, 65535, nil)
	remote1, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 2, "10.0.0.2", 2, 65535, nil)
	remote2, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 3, "10.0.0.2", 3, 65535, nil)

	first := cl.Insert(local1, remote1, ControllingRole)
	second := cl.Insert(local2, remote2, ControllingRole)
	assert.Equal(t, PairStateFrozen, second.State)

	first.State = PairStateSucceeded
	cl.unfreezeOneFrozenPair()
	assert.Equal(t, PairStateWaiting, second.State, "once nothing is waiting/in-progress, a frozen sibling unfreezes")
}
