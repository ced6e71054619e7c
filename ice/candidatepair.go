package ice

import (
	"fmt"

	"github.com/google/uuid"
)

// PairState is the state a CandidatePair moves through (spec.md §3).
type PairState byte

const (
	// PairStateFrozen: a check for this pair will not be sent until it
	// is unfrozen into waiting (spec.md §3 invariant 1).
	PairStateFrozen PairState = iota
	// PairStateWaiting: eligible to be picked by the checklist scheduler.
	PairStateWaiting
	// PairStateInProgress: a check has been sent and a response is
	// pending (spec.md §3 invariant 4).
	PairStateInProgress
	// PairStateSucceeded: the check produced a valid response.
	PairStateSucceeded
	// PairStateFailed: retries were exhausted or a symmetry violation
	// was observed (spec.md §4.4.4, §4.4.3 case "symmetry check").
	PairStateFailed
)

func (s PairState) String() string {
	switch s {
	case PairStateFrozen:
		return "frozen"
	case PairStateWaiting:
		return "waiting"
	case PairStateInProgress:
		return "in-progress"
	case PairStateSucceeded:
		return "succeeded"
	case PairStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CandidatePair is the mutable (local, remote) tuple described in
// spec.md §3. Fields are only ever mutated from within the Agent's
// single mailbox goroutine (spec.md §5); there is no internal locking.
type CandidatePair struct {
	// ID is a stable identifier assigned at creation. Using a random
	// uuid.UUID rather than a shared counter means pairs discovered
	// concurrently by independent checklists (were this agent ever
	// extended to multiple components) never collide, and it doubles
	// as a human-distinguishable log key.
	ID uuid.UUID

	Local  Candidate
	Remote Candidate

	// Role is the agent's role at pair creation time; it determines
	// which side of the priority formula the local candidate occupies
	// (spec.md §4.2).
	Role Role

	State PairState

	// Priority is derived per spec.md §3:
	//   2^32*min(G,D) + 2*max(G,D) + (G>D ? 1 : 0)
	// where G is the controlling side's candidate priority and D the
	// controlled side's.
	Priority uint64

	// Valid is set when a check on this pair has produced a valid
	// response (spec.md §3).
	Valid bool

	// Nominate records that the agent intends to nominate this pair at
	// its next successful check, or — for a controlled agent — that the
	// peer has asked to nominate it via USE-CANDIDATE before this pair's
	// own check has succeeded (spec.md §4.4.2 table, scenario 2).
	Nominate bool

	// Nominated is set once nomination has actually taken effect
	// (spec.md §3 invariant 2: Nominated implies Succeeded && Valid).
	Nominated bool

	// DiscoveredPairID points back at the connectivity-check pair whose
	// check produced this pair as a peer-reflexive discovery
	// (spec.md §3 "discovered_pair_id"). Stored as an id, not a
	// pointer, per spec.md §9 "back-references" guidance.
	DiscoveredPairID uuid.UUID

	// transactionID is the STUN transaction id of the most recent
	// outbound check on this pair. Checklist.FindByTransaction matches a
	// response to it only while the pair is in progress.
	transactionID [12]byte
}

// pairKey is the checklist equality/pruning key (spec.md §3: "Two
// pairs are equal iff (local_cand, remote_cand) compare equal").
type pairKey struct {
	local  candidateKey
	remote candidateKey
}

func (p *CandidatePair) key() pairKey {
	return pairKey{local: p.Local.key(), remote: p.Remote.key()}
}

// pruneKey groups pairs for the pruning rule of spec.md §4.3: "for
// every tuple (local_cand.base_address, local_cand.base_port,
// remote_cand), only the highest-priority pair survives."
type pruneKey struct {
	localBaseAddress string
	localBasePort    int
	remote           candidateKey
}

func (p *CandidatePair) pruneKey() pruneKey {
	return pruneKey{
		localBaseAddress: p.Local.BaseAddress(),
		localBasePort:    p.Local.BasePort(),
		remote:           p.Remote.key(),
	}
}

// foundationKey groups pairs for the freezing rule of spec.md §3
// invariant 1 and §4.3 "Initial pair state on insertion".
type foundationKey struct {
	local  string
	remote string
}

func (p *CandidatePair) foundationKey() foundationKey {
	return foundationKey{local: p.Local.Foundation(), remote: p.Remote.Foundation()}
}

// newCandidatePair computes a fresh pair's priority and assigns it a
// new id (spec.md §4.2). initialState is supplied by the checklist
// once it knows whether this pair's foundation tuple is already
// present (frozen) or not (waiting); newCandidatePair itself does not
// know about other pairs.
func newCandidatePair(local, remote Candidate, role Role, initialState PairState) *CandidatePair {
	return &CandidatePair{
		ID:       uuid.New(),
		Local:    local,
		Remote:   remote,
		Role:     role,
		State:    initialState,
		Priority: pairPriority(local, remote, role),
	}
}

// pairPriority implements the role-dependent formula of spec.md §3 /
// RFC 8445 §6.1.2.3: both sides of the session compute the same
// priority for the same underlying pair because each plugs its own
// candidate into the G (controlling) or D (controlled) slot depending
// on its own role, not the other side's.
func pairPriority(local, remote Candidate, role Role) uint64 {
	var g, d uint32
	if role == ControllingRole {
		g, d = local.Priority(), remote.Priority()
	} else {
		g, d = remote.Priority(), local.Priority()
	}

	min := func(x, y uint32) uint64 {
		if x < y {
			return uint64(x)
		}
		return uint64(y)
	}
	max := func(x, y uint32) uint64 {
		if x > y {
			return uint64(x)
		}
		return uint64(y)
	}

	v := (uint64(1)<<32)*min(g, d) + 2*max(g, d)
	if g > d {
		v++
	}
	return v
}

func (p *CandidatePair) String() string {
	return fmt.Sprintf("pair %s: %s <-> %s state=%s prio=%d valid=%v nominate=%v nominated=%v",
		p.ID, p.Local, p.Remote, p.State, p.Priority, p.Valid, p.Nominate, p.Nominated)
}
