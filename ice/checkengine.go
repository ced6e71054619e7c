package ice

import (
	"net"

	"github.com/pion/stun/v3"
)

// This file is the CheckEngine component of spec.md §4.4: building and
// sending connectivity checks, matching responses to in-flight
// transactions, validating symmetry, and producing new (possibly
// peer-reflexive) candidates and pairs. It is organised as a set of
// methods on *Agent — the same structural choice the teacher's
// pkg/ice/agent.go makes (pingCandidate, handleInbound,
// handleInboundControlling/Controlled, setValidPair all live directly
// on Agent) — generalised from a 3-second unauthenticated ping loop
// into the full role-aware, retransmitting, symmetry-checked state
// machine spec.md §4.4 requires.

// sendConnectivityCheck implements spec.md §4.4.1: build, authenticate,
// transmit a binding request on pair, and transition it to in-progress.
func (a *Agent) sendConnectivityCheck(pair *CandidatePair) {
	setters := []stun.Setter{
		stun.TransactionID,
		stun.NewType(stun.MethodBinding, stun.ClassRequest),
		stun.NewUsername(a.remoteUfrag + ":" + a.localUfrag),
		priorityAttr{Priority: pair.Local.Priority()},
	}
	if a.role == ControllingRole {
		setters = append(setters, iceControllingAttr{TieBreaker: a.tieBreaker})
		if pair.Nominate {
			setters = append(setters, useCandidateAttr{})
		}
	} else {
		setters = append(setters, iceControlledAttr{TieBreaker: a.tieBreaker})
	}
	setters = append(setters,
		stun.NewShortTermIntegrity(a.remotePwd),
		stun.Fingerprint,
	)

	msg, err := stun.Build(setters...)
	if err != nil {
		a.checkLog.Errorf("ice: failed to build binding request: %v", err)
		return
	}
	var tid [12]byte
	copy(tid[:], msg.TransactionID[:])

	dst := &net.UDPAddr{IP: net.ParseIP(pair.Remote.Address()), Port: pair.Remote.Port()}
	if !a.doSend(pair.Local.Conn(), dst, msg.Raw) {
		pair.State = PairStateFailed
		a.checklist.unfreezeOneFrozenPair()
		return
	}

	pair.State = PairStateInProgress
	pair.transactionID = tid
	a.connChecks[tid] = pair
	a.armCheckTimer(tid)
}

// handleInboundSTUN demultiplexes a datagram recognised as STUN into
// the binding-request and binding-response paths (spec.md §4.4.2,
// §4.4.3). Non-STUN datagrams, and STUN datagrams that fail decode,
// are dropped silently per spec.md §7 item 1.
func (a *Agent) handleInboundSTUN(conn Conn, raw []byte, src *net.UDPAddr) {
	m := &stun.Message{Raw: append([]byte(nil), raw...)}
	if err := m.Decode(); err != nil {
		a.log.Debugf("ice: dropping malformed STUN datagram from %s: %v", src, err)
		return
	}

	switch {
	case m.Type.Class == stun.ClassRequest && m.Type.Method == stun.MethodBinding:
		a.handleBindingRequest(m, conn, src)
	case m.Type.Class == stun.ClassSuccessResponse && m.Type.Method == stun.MethodBinding:
		a.handleBindingSuccess(m, conn, src)
	default:
		a.log.Debugf("ice: dropping unexpected STUN message class/method from %s", src)
	}
}

// handleBindingRequest implements spec.md §4.4.2.
func (a *Agent) handleBindingRequest(m *stun.Message, conn Conn, src *net.UDPAddr) {
	integrity := stun.NewShortTermIntegrity(a.localPwd)
	if err := integrity.Check(m); err != nil {
		a.log.Debugf("ice: dropping request from %s: bad integrity: %v", src, err)
		return
	}
	if err := stun.Fingerprint.Check(m); err != nil {
		a.log.Debugf("ice: dropping request from %s: bad fingerprint: %v", src, err)
		return
	}

	a.maybeResolveRoleConflict(m)

	// Always reply, per spec.md §4.4.2 step 2.
	a.sendBindingSuccess(m, conn, src)

	localCand, ok := a.localCandidateForConn(conn)
	if !ok {
		a.log.Warnf("ice: no local candidate for socket receiving request from %s", src)
		return
	}

	remoteCand, discovered := a.remoteCandidateForAddr(src)
	if discovered {
		var peerPriority priorityAttr
		if err := peerPriority.GetFrom(m); err == nil {
			remoteCand = NewPeerReflexiveCandidate(src.IP.String(), src.Port, src.IP.String(), src.Port, peerPriority.Priority, nil)
		} else {
			remoteCand, _ = NewCandidate(CandidateTypePeerReflexive, src.IP.String(), src.Port, src.IP.String(), src.Port, 1, nil)
		}
		a.remoteCandidates = append(a.remoteCandidates, remoteCand)
		a.log.Infof("ice: discovered peer-reflexive remote candidate %s", remoteCand)
	}

	useCandidate := hasUseCandidate(m)

	pair := a.checklist.Find(localCand, remoteCand)
	switch {
	case pair == nil:
		pair = a.checklist.Insert(localCand, remoteCand, a.role)
		pair.Nominate = useCandidate
	case pair.State == PairStateSucceeded:
		if useCandidate && a.role == ControlledRole {
			a.nominate(pair)
		}
		// else: keepalive/retransmit, no-op (spec.md §4.4.2 table).
	default:
		if useCandidate {
			pair.Nominate = true
		}
	}
}

// remoteCandidateForAddr returns the known remote candidate matching
// src, or (zero-value, true) if none is known yet and one must be
// synthesised by the caller (spec.md §4.4.2 step 3).
func (a *Agent) remoteCandidateForAddr(src *net.UDPAddr) (Candidate, bool) {
	for _, c := range a.remoteCandidates {
		if c.Address() == src.IP.String() && c.Port() == src.Port {
			return c, false
		}
	}
	return Candidate{}, true
}

// localCandidateForConn returns the host candidate sharing conn, used
// to identify "the local candidate for this socket" (spec.md §4.4.2/§4.4.3).
func (a *Agent) localCandidateForConn(conn Conn) (Candidate, bool) {
	var fallback Candidate
	haveFallback := false
	for _, c := range a.localCandidates {
		if c.Conn() != conn {
			continue
		}
		if c.Type() == CandidateTypeHost {
			return c, true
		}
		if !haveFallback {
			fallback, haveFallback = c, true
		}
	}
	return fallback, haveFallback
}

// sendBindingSuccess implements spec.md §4.4.2 step 2.
func (a *Agent) sendBindingSuccess(req *stun.Message, conn Conn, dst *net.UDPAddr) {
	msg, err := stun.Build(
		echoTransactionID(req.TransactionID),
		stun.NewType(stun.MethodBinding, stun.ClassSuccessResponse),
		&stun.XORMappedAddress{IP: dst.IP, Port: dst.Port},
		stun.NewShortTermIntegrity(a.localPwd),
		stun.Fingerprint,
	)
	if err != nil {
		a.log.Errorf("ice: failed to build binding success: %v", err)
		return
	}

	a.doSend(conn, dst, msg.Raw)
}

// handleBindingSuccess implements spec.md §4.4.3: dispatch to whichever
// pending table the transaction id matches.
func (a *Agent) handleBindingSuccess(m *stun.Message, conn Conn, src *net.UDPAddr) {
	var tid [12]byte
	copy(tid[:], m.TransactionID[:])

	if gt := a.gatherTransactionByID(tid); gt != nil {
		a.handleGatherResponse(gt, m)
		return
	}

	pair := a.checklist.FindByTransaction(tid)
	if pair == nil {
		a.log.Warnf("ice: unknown transaction id in response from %s", src)
		return
	}
	a.stopCheckTimer(tid)
	delete(a.connChecks, tid)

	a.handleCheckResponse(pair, m, conn, src)
}

// handleCheckResponse implements spec.md §4.4.3's connectivity-check
// branch in full, including the symmetry check and the add-valid-pair
// table.
func (a *Agent) handleCheckResponse(c *CandidatePair, m *stun.Message, conn Conn, src *net.UDPAddr) {
	// Step 1: symmetry check (spec.md §4.4.3 / P5).
	if src.IP.String() != c.Remote.Address() || src.Port != c.Remote.Port() || conn != c.Local.Conn() {
		c.State = PairStateFailed
		a.log.Warnf("ice: symmetry violation on pair %s: response from %s on wrong socket/address", c.ID, src)
		a.checklist.unfreezeOneFrozenPair()
		return
	}

	var integrity = stun.NewShortTermIntegrity(a.remotePwd)
	if err := integrity.Check(m); err != nil {
		c.State = PairStateFailed
		a.log.Debugf("ice: dropping response on pair %s: bad integrity: %v", c.ID, err)
		return
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(m); err != nil {
		c.State = PairStateFailed
		a.log.Warnf("ice: response on pair %s missing XOR-MAPPED-ADDRESS", c.ID)
		return
	}

	localForX, isNewPrflx := a.localCandidateMatchingAddr(xorAddr.IP, xorAddr.Port)
	if isNewPrflx {
		localForX = NewPeerReflexiveCandidate(xorAddr.IP.String(), xorAddr.Port, c.Local.BaseAddress(), c.Local.BasePort(), c.Local.Priority(), c.Local.Conn())
		a.localCandidates = append(a.localCandidates, localForX)
		a.emitNewCandidate(localForX)
	}

	v := newCandidatePair(localForX, c.Remote, a.role, PairStateSucceeded)
	v.Valid = true

	switch {
	case a.existingValidNominatingPair(v) != nil:
		e := a.existingValidNominatingPair(v)
		e.State = PairStateSucceeded
		e.Nominated = true
		e.Nominate = false
		a.selectPair(e)

	case v.key() == c.key():
		// V ≡ C: promote C, emit connected.
		c.State = PairStateSucceeded
		c.Valid = true
		a.emitConnectedOnce()
		a.maybeScheduleNomination(c)

	case a.checklist.Find(v.Local, v.Remote) != nil:
		e := a.checklist.Find(v.Local, v.Remote)
		c.State = PairStateSucceeded
		e.State = PairStateSucceeded
		e.Valid = true
		a.emitConnectedOnce()
		a.maybeScheduleNomination(c)

	default:
		c.State = PairStateSucceeded
		v.DiscoveredPairID = c.ID
		a.checklist.InsertPair(v)
		a.emitConnectedOnce()
		a.maybeScheduleNomination(c)
	}

	a.checklist.unfreezeOneFrozenPair()
}

// existingValidNominatingPair returns an existing pair matching v's
// address tuple that is already valid and was waiting on this
// nomination to land (spec.md §4.4.3 table, row 2), or nil.
func (a *Agent) existingValidNominatingPair(v *CandidatePair) *CandidatePair {
	e := a.checklist.Find(v.Local, v.Remote)
	if e == nil || !e.Valid || !e.Nominate {
		return nil
	}
	return e
}

// maybeScheduleNomination implements spec.md §4.4.3 step 5: a
// controlling agent whose check on c succeeded, with c.Nominate
// already set and no nomination landed on v this round, will send a
// fresh USE-CANDIDATE check on c at the next Ta tick — achieved simply
// by moving c back to waiting with Nominate intact.
func (a *Agent) maybeScheduleNomination(c *CandidatePair) {
	if a.role != ControllingRole || !c.Nominate || c.Nominated {
		return
	}
	if c.State == PairStateSucceeded {
		c.State = PairStateWaiting
	}
}

// nominate implements the controlled-agent nomination path of
// spec.md §4.4.2 table row 2: mark the discovered pair nominated and
// run the selection policy of spec.md §4.5.2.
func (a *Agent) nominate(pair *CandidatePair) {
	pair.Nominated = true
	pair.Nominate = false
	a.selectPair(pair)
}

// selectPair implements spec.md §4.5.2 / invariant 3: select pair if
// nothing is selected yet, or only if pair's priority strictly
// exceeds the current selection's.
func (a *Agent) selectPair(pair *CandidatePair) {
	if a.selectedPair != nil && pair.Priority <= a.selectedPair.Priority {
		return
	}
	a.selectedPair = pair
	a.onEvent.selectedPair(SelectedPairEvent{Pair: pair})
}

// localCandidateMatchingAddr returns the known local candidate with
// address (ip, port), or indicates none matched so the caller should
// synthesise a peer-reflexive one (spec.md §4.4.3 step 2).
func (a *Agent) localCandidateMatchingAddr(ip net.IP, port int) (Candidate, bool) {
	for _, c := range a.localCandidates {
		if c.Address() == ip.String() && c.Port() == port {
			return c, false
		}
	}
	return Candidate{}, true
}

// emitConnectedOnce emits :connected the first time any pair becomes
// valid, and is a no-op thereafter.
func (a *Agent) emitConnectedOnce() {
	if a.connectedEmitted {
		return
	}
	a.connectedEmitted = true
	a.onEvent.connected()
}

func (a *Agent) emitNewCandidate(c Candidate) {
	a.onEvent.newCandidate(NewCandidateEvent{Candidate: c, Marshalled: c.Marshal()})
}

// maybeResolveRoleConflict implements spec.md §9 open question 4
// (RFC 8445 §7.3.1.1): if the peer's claimed role agrees with ours, a
// full implementation would reply 487 and let the tie-breakers decide
// who switches; since this agent is lenient by default (spec.md §7
// item 3 notes strict handling is optional), it resolves the conflict
// locally, rather than either ignoring the conflict or rejecting the
// request outright: a controlling agent switches to controlled when the
// peer's tie-breaker is numerically greater than its own, and a
// controlled agent switches to controlling when its own tie-breaker is
// greater than or equal to the peer's.
func (a *Agent) maybeResolveRoleConflict(m *stun.Message) {
	peerRole, peerTieBreaker, present := getIceRoleAttr(m)
	if !present || peerRole != a.role {
		return
	}
	if a.role == ControllingRole && a.tieBreaker >= peerTieBreaker {
		return
	}
	if a.role == ControlledRole && a.tieBreaker < peerTieBreaker {
		return
	}
	if a.role == ControllingRole {
		a.role = ControlledRole
	} else {
		a.role = ControllingRole
	}
	a.log.Warnf("ice: resolved role conflict, switched to %s", a.role)
}

// doSend implements spec.md §7 item 4 / §9 open question 2: retry
// immediately on transient EPERM-like failures, bounded by
// MaxSendRetries, rather than retrying forever. Returns false if the
// send never succeeded.
func (a *Agent) doSend(conn Conn, dst *net.UDPAddr, b []byte) bool {
	if conn == nil {
		a.log.Warnf("ice: doSend: no connection for %s", dst)
		return false
	}
	for attempt := 0; attempt <= a.cfg.MaxSendRetries; attempt++ {
		if _, err := conn.WriteTo(b, dst); err == nil {
			return true
		} else if attempt == a.cfg.MaxSendRetries {
			a.log.Warnf("ice: send to %s failed after %d retries: %v", dst, attempt, err)
			return false
		}
	}
	return false
}

func (a *Agent) armCheckTimer(tid [12]byte) {
	t := a.rtoFactory()
	a.checkTimers[tid] = t
	go a.watchCheckTimer(tid, t)
}

func (a *Agent) stopCheckTimer(tid [12]byte) {
	if t, ok := a.checkTimers[tid]; ok {
		t.Stop()
		delete(a.checkTimers, tid)
	}
}
