package ice

// Events emitted upward to the containing application (spec.md §6).
// Each handler is invoked synchronously from within the single mailbox
// goroutine, so the Agent waits for it to return, and handlers must not
// call back into the Agent or they will deadlock against its own mailbox.
// Handlers that need to do real work should hand the event off
// (channel, goroutine) and return immediately, the same discipline the
// teacher's OnConnectionStateChange/OnReceive callbacks assume.

// LocalCredentials carries the agent's own ufrag/pwd, emitted once
// after Run and before any connectivity check is sent.
type LocalCredentials struct {
	Ufrag string
	Pwd   string
}

// NewCandidateEvent is emitted for every newly gathered or discovered
// local candidate, carrying its wire-marshalled form.
type NewCandidateEvent struct {
	Candidate  Candidate
	Marshalled string
}

// SelectedPairEvent is emitted every time the selected pair changes
// (spec.md §4.5.2); at most once per strictly-increasing priority.
type SelectedPairEvent struct {
	Pair *CandidatePair
}

// AgentEventHandler is the set of callbacks an application may supply.
// Any field left nil is simply not invoked.
type AgentEventHandler struct {
	OnLocalCredentials func(LocalCredentials)
	OnNewCandidate     func(NewCandidateEvent)
	OnGatheringComplete func()
	OnConnected         func()
	OnSelectedPair      func(SelectedPairEvent)
	OnFailed            func()
}

func (h AgentEventHandler) localCredentials(e LocalCredentials) {
	if h.OnLocalCredentials != nil {
		h.OnLocalCredentials(e)
	}
}

func (h AgentEventHandler) newCandidate(e NewCandidateEvent) {
	if h.OnNewCandidate != nil {
		h.OnNewCandidate(e)
	}
}

func (h AgentEventHandler) gatheringComplete() {
	if h.OnGatheringComplete != nil {
		h.OnGatheringComplete()
	}
}

func (h AgentEventHandler) connected() {
	if h.OnConnected != nil {
		h.OnConnected()
	}
}

func (h AgentEventHandler) selectedPair(e SelectedPairEvent) {
	if h.OnSelectedPair != nil {
		h.OnSelectedPair(e)
	}
}

func (h AgentEventHandler) failed() {
	if h.OnFailed != nil {
		h.OnFailed()
	}
}
