package ice

import (
	"sort"

	"github.com/google/uuid"
)

// Checklist is the ordered collection of CandidatePairs described in
// spec.md §3/§4.3: ordered by priority descending, pruned after every
// insertion, never containing two pairs with the same pruning key.
type Checklist struct {
	pairs []*CandidatePair
}

// Insert appends pair, assigning it frozen or waiting state per
// spec.md §4.3 ("frozen if the pair's foundation tuple already appears
// in the checklist; otherwise waiting"), then re-sorts and re-prunes
// the checklist (spec.md §4.3 "insert(pair) — append and re-prune").
func (cl *Checklist) Insert(local, remote Candidate, role Role) *CandidatePair {
	initial := PairStateWaiting
	fk := foundationKey{local: local.Foundation(), remote: remote.Foundation()}
	for _, existing := range cl.pairs {
		if existing.foundationKey() == fk {
			initial = PairStateFrozen
			break
		}
	}

	pair := newCandidatePair(local, remote, role, initial)
	cl.pairs = append(cl.pairs, pair)
	cl.order()
	cl.prune()
	return pair
}

// InsertPair inserts an already-constructed pair (used by the
// CheckEngine when it builds a "valid pair" V directly, spec.md
// §4.4.3) and re-prunes.
func (cl *Checklist) InsertPair(pair *CandidatePair) {
	cl.pairs = append(cl.pairs, pair)
	cl.order()
	cl.prune()
}

// order sorts pairs by priority descending; the stable sort keeps
// equal-priority pairs in insertion order, so ties break the same way
// on every run (spec.md §4.3 "highest_waiting ... breaking ties
// arbitrarily but deterministically").
func (cl *Checklist) order() {
	sort.SliceStable(cl.pairs, func(i, j int) bool {
		return cl.pairs[i].Priority > cl.pairs[j].Priority
	})
}

// prune implements spec.md §4.3: "sort descending by priority, then
// keep the first occurrence of each (base_address, base_port,
// remote_cand) key." Because order() already sorted descending, the
// first occurrence encountered is always the highest-priority one.
func (cl *Checklist) prune() {
	seen := make(map[pruneKey]bool, len(cl.pairs))
	result := make([]*CandidatePair, 0, len(cl.pairs))
	for _, p := range cl.pairs {
		k := p.pruneKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, p)
	}
	cl.pairs = result
}

// Find returns the unique pair matching the candidate-equality key of
// spec.md §3, or nil.
func (cl *Checklist) Find(local, remote Candidate) *CandidatePair {
	want := pairKey{local: local.key(), remote: remote.key()}
	for _, p := range cl.pairs {
		if p.key() == want {
			return p
		}
	}
	return nil
}

// FindByID looks up a pair by id, used to resolve DiscoveredPairID
// back-references (spec.md §9 "store pair identifiers, not pointers").
func (cl *Checklist) FindByID(id uuid.UUID) *CandidatePair {
	for _, p := range cl.pairs {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// FindByTransaction returns the in-progress pair that owns the given
// STUN transaction id, or nil (spec.md §4.4.3, invariant 4).
func (cl *Checklist) FindByTransaction(tid [12]byte) *CandidatePair {
	for _, p := range cl.pairs {
		if p.State == PairStateInProgress && p.transactionID == tid {
			return p
		}
	}
	return nil
}

// HighestWaiting returns the highest-priority pair in PairStateWaiting,
// or nil if none (spec.md §4.3).
func (cl *Checklist) HighestWaiting() *CandidatePair {
	return cl.highestInState(PairStateWaiting)
}

// HighestSucceeded returns the highest-priority pair in
// PairStateSucceeded, or nil if none (spec.md §4.3).
func (cl *Checklist) HighestSucceeded() *CandidatePair {
	return cl.highestInState(PairStateSucceeded)
}

func (cl *Checklist) highestInState(state PairState) *CandidatePair {
	// cl.pairs is always priority-sorted, so the first match is highest.
	for _, p := range cl.pairs {
		if p.State == state {
			return p
		}
	}
	return nil
}

// Any reports whether any pair is in the given state.
func (cl *Checklist) Any(state PairState) bool {
	for _, p := range cl.pairs {
		if p.State == state {
			return true
		}
	}
	return false
}

// Pairs returns the checklist's pairs in priority order. Callers must
// not mutate the returned slice.
func (cl *Checklist) Pairs() []*CandidatePair {
	return cl.pairs
}

// Len returns the number of pairs currently in the checklist.
func (cl *Checklist) Len() int {
	return len(cl.pairs)
}

// unfreezeOneFrozenPair promotes a single frozen pair, the
// highest-priority one, to waiting, and only when no pair is waiting
// or in progress. Called after a pair fails or succeeds. It unfreezes
// one pair in total, not one pair per foundation. This single-checklist
// agent only ever has one component, so cross-checklist unfreezing
// (spec.md §9 open question 6) does not apply.
func (cl *Checklist) unfreezeOneFrozenPair() {
	if cl.Any(PairStateWaiting) || cl.Any(PairStateInProgress) {
		return
	}
	for _, p := range cl.pairs {
		if p.State == PairStateFrozen {
			p.State = PairStateWaiting
			return
		}
	}
}
