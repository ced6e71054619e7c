package ice

import (
	"net"
	"strconv"

	"github.com/pion/stun/v3"

	"github.com/iceagent-go/ice/internal/rto"
)

// This file is the gathering half of the CheckEngine's transaction
// bookkeeping (spec.md §4.5.1): sending srflx binding requests against
// configured STUN servers, matching their responses, and turning a
// successful response into a server-reflexive local candidate. It
// mirrors sendConnectivityCheck/handleBindingSuccess's shape in
// checkengine.go deliberately, since RFC 5389 binding requests are the
// same wire operation in both roles — only the bookkeeping they feed
// differs (spec.md §4.4.1 vs §4.5.1).

// advanceOneGatherTransaction implements spec.md §4.5.1 step 1: "On
// each Ta tick the Agent either advances a gathering transaction". It
// sends the next waiting transaction's request and returns true, or
// returns false when no transaction is waiting so the tick falls
// through to the CheckEngine. Once every transaction has finished it
// also emits gathering-complete (once).
func (a *Agent) advanceOneGatherTransaction() bool {
	for _, gt := range a.gatherTransactions {
		if gt.state == gatherWaiting {
			a.sendGatherRequest(gt)
			return true
		}
	}
	if !a.gatheringComplete && a.allGatherTransactionsDone() {
		a.gatheringComplete = true
		a.onEvent.gatheringComplete()
	}
	return false
}

func (a *Agent) allGatherTransactionsDone() bool {
	for _, gt := range a.gatherTransactions {
		if gt.state != gatherDone {
			return false
		}
	}
	return true
}

// sendGatherRequest sends an unauthenticated STUN binding request to
// gt.server from gt.hostCandidate's socket (RFC 5389 §7.2: srflx
// discovery needs no MESSAGE-INTEGRITY since no credentials have been
// exchanged with the STUN server).
func (a *Agent) sendGatherRequest(gt *gatherTransaction) {
	msg, err := stun.Build(
		stun.TransactionID,
		stun.NewType(stun.MethodBinding, stun.ClassRequest),
		stun.Fingerprint,
	)
	if err != nil {
		a.gatherLog.Errorf("ice: failed to build gathering request: %v", err)
		gt.state = gatherDone
		return
	}
	var tid [12]byte
	copy(tid[:], msg.TransactionID[:])

	dst, err := net.ResolveUDPAddr("udp", net.JoinHostPort(gt.server.Host, strconv.Itoa(gt.server.Port)))
	if err != nil {
		a.gatherLog.Warnf("ice: failed to resolve STUN server %s: %v", gt.server, err)
		gt.state = gatherDone
		return
	}
	if !a.doSend(gt.hostCandidate.conn, dst, msg.Raw) {
		gt.state = gatherDone
		return
	}

	gt.state = gatherInProgress
	gt.transactionID = tid
	a.armGatherTimer(gt, tid)
}

// gatherTransactionByID returns the in-progress gathering transaction
// owning tid, or nil.
func (a *Agent) gatherTransactionByID(tid [12]byte) *gatherTransaction {
	for _, gt := range a.gatherTransactions {
		if gt.state == gatherInProgress && gt.transactionID == tid {
			return gt
		}
	}
	return nil
}

// handleGatherResponse implements the srflx branch of spec.md §4.5.1:
// extract XOR-MAPPED-ADDRESS, register a new server-reflexive local
// candidate sharing the host candidate's connection (so its foundation
// and NAT binding are tied to that base/server pair per spec.md §3),
// and pair it against every known remote candidate.
func (a *Agent) handleGatherResponse(gt *gatherTransaction, m *stun.Message) {
	a.stopGatherTimer(gt)
	gt.state = gatherDone

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(m); err != nil {
		a.gatherLog.Warnf("ice: gathering response from %s missing XOR-MAPPED-ADDRESS", gt.server)
		return
	}

	base := gt.hostCandidate.candidate
	srflxConn := newUDPConn(underlyingPacketConn(base.Conn()), gt.server.String())

	srflx, err := NewCandidate(
		CandidateTypeServerReflexive,
		xorAddr.IP.String(), xorAddr.Port,
		base.Address(), base.Port(),
		localPreferenceFor(base.Priority()),
		srflxConn,
	)
	if err != nil {
		a.gatherLog.Warnf("ice: failed to build srflx candidate: %v", err)
		return
	}

	for _, existing := range a.localCandidates {
		if existing.Equal(srflx) {
			return
		}
	}

	a.localCandidates = append(a.localCandidates, srflx)
	a.emitNewCandidate(srflx)
	for _, remote := range a.remoteCandidates {
		a.pairAgainstRemote(remote)
	}
}

// localPreferenceFor keeps the srflx candidate's local-preference term
// identical to the host candidate it was discovered from, since they
// share the same physical interface (RFC 8445 §5.1.2.1).
func localPreferenceFor(hostPriority uint32) uint32 {
	return (hostPriority >> 8) & 0x0000ffff
}

// underlyingPacketConn lets the srflx candidate record gt.server as its
// StunServer() while still sending on the same host socket: Conn
// equality for foundation purposes is by StunServer() string, not by
// Go identity, so reusing the host's *udpConn directly would report
// the host's (empty) server instead of this srflx candidate's.
func underlyingPacketConn(c Conn) net.PacketConn {
	if uc, ok := c.(*udpConn); ok {
		return uc.pc
	}
	return nil
}

func (a *Agent) armGatherTimer(gt *gatherTransaction, tid [12]byte) {
	t := a.rtoFactory()
	a.gatherTimers[tid] = t
	go a.watchGatherTimer(gt, tid, t)
}

func (a *Agent) stopGatherTimer(gt *gatherTransaction) {
	if t, ok := a.gatherTimers[gt.transactionID]; ok {
		t.Stop()
		delete(a.gatherTimers, gt.transactionID)
	}
}

// watchGatherTimer retransmits or gives up on a gathering transaction,
// mirroring watchCheckTimer's structure in agent.go (spec.md §4.4.4's
// RTO schedule applies identically to gathering requests).
func (a *Agent) watchGatherTimer(gt *gatherTransaction, tid [12]byte, t *rto.Timer) {
	for range t.C() {
		retransmit := false
		done := make(chan struct{})
		a.post(func() {
			defer close(done)
			if gt.state != gatherInProgress || gt.transactionID != tid {
				t.Stop()
				return
			}
			retransmit = t.Fired()
			if !retransmit {
				gt.state = gatherDone
				delete(a.gatherTimers, tid)
				if a.allGatherTransactionsDone() && !a.gatheringComplete {
					a.gatheringComplete = true
					a.onEvent.gatheringComplete()
				}
				return
			}
			delete(a.gatherTimers, tid)
			gt.state = gatherWaiting
		})
		<-done
		if !retransmit {
			return
		}
	}
}
