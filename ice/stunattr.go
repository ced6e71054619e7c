package ice

import (
	"encoding/binary"

	"github.com/pion/stun/v3"
)

// ICE-only STUN attributes. These are ICE extensions (RFC 8445 §16.1),
// not part of the generic STUN attribute set pion/stun ships, so —
// exactly as the real pion/ice does — this package implements the
// stun.Setter/stun.Getter interfaces for them itself rather than
// reaching for something pion/stun does not provide (spec.md §6.1).
const (
	attrPriority       stun.AttrType = 0x0024
	attrUseCandidate   stun.AttrType = 0x0025
	attrIceControlled  stun.AttrType = 0x8029
	attrIceControlling stun.AttrType = 0x802a
)

// priorityAttr carries the candidate PRIORITY of the candidate that
// generated the check (RFC 8445 §7.1.1), used to recompute
// peer-reflexive priority per spec.md §9 open question 5.
type priorityAttr struct {
	Priority uint32
}

func (p priorityAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p.Priority)
	m.Add(attrPriority, v)
	return nil
}

func (p *priorityAttr) GetFrom(m *stun.Message) error {
	v, err := m.Get(attrPriority)
	if err != nil {
		return err
	}
	if len(v) != 4 {
		return stun.ErrAttributeSizeInvalid
	}
	p.Priority = binary.BigEndian.Uint32(v)
	return nil
}

// useCandidateAttr is the zero-length USE-CANDIDATE flag the
// controlling agent sets when it wants this pair nominated
// (spec.md §4.4.1).
type useCandidateAttr struct{}

func (useCandidateAttr) AddTo(m *stun.Message) error {
	m.Add(attrUseCandidate, nil)
	return nil
}

func hasUseCandidate(m *stun.Message) bool {
	_, err := m.Get(attrUseCandidate)
	return err == nil
}

// iceControllingAttr/iceControlledAttr carry the agent's 64-bit
// tie-breaker (spec.md §4.4.1, §9 open question 3).
type iceControllingAttr struct {
	TieBreaker uint64
}

func (a iceControllingAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, a.TieBreaker)
	m.Add(attrIceControlling, v)
	return nil
}

type iceControlledAttr struct {
	TieBreaker uint64
}

func (a iceControlledAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, a.TieBreaker)
	m.Add(attrIceControlled, v)
	return nil
}

// echoTransactionID is a Setter that copies an already-known
// transaction id onto an outgoing message, used when building a
// response that must echo the request's id (spec.md §4.4.2 step 2).
// stun.TransactionID (the package-level Setter) always generates a
// fresh random id, which is right for new requests but wrong here.
type echoTransactionID [stun.TransactionIDSize]byte

func (t echoTransactionID) AddTo(m *stun.Message) error {
	m.TransactionID = [stun.TransactionIDSize]byte(t)
	m.WriteTransactionID()
	return nil
}

// getIceRoleAttr inspects an incoming request for a role attribute,
// returning the peer's claimed role and tie-breaker if present. Used
// for role-conflict detection (spec.md §9 open question 4).
func getIceRoleAttr(m *stun.Message) (role Role, tieBreaker uint64, present bool) {
	if v, err := m.Get(attrIceControlling); err == nil && len(v) == 8 {
		return ControllingRole, binary.BigEndian.Uint64(v), true
	}
	if v, err := m.Get(attrIceControlled); err == nil && len(v) == 8 {
		return ControlledRole, binary.BigEndian.Uint64(v), true
	}
	return UnknownRole, 0, false
}
