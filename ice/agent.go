package ice

import (
	"time"

	"github.com/pion/logging"
	"github.com/pion/randutil"
	"github.com/pkg/errors"

	"github.com/iceagent-go/ice/internal/rto"
)

// Agent is the top-level orchestrator of spec.md §4.5: it owns
// credentials, gathering transactions, the checklist, role-specific
// nomination policy, and the periodic Ta tick. State is mutated from
// the mailbox loop that NewAgent starts, per the single-threaded
// cooperative serialisation model of spec.md §5.
type Agent struct {
	cfg  AgentConfig
	role Role

	tieBreaker uint64

	localUfrag, localPwd   string
	remoteUfrag, remotePwd string
	haveRemoteCredentials  bool

	localCandidates  []Candidate
	remoteCandidates []Candidate

	checklist Checklist

	connChecks  map[[12]byte]*CandidatePair
	checkTimers map[[12]byte]*rto.Timer

	gatherTransactions []*gatherTransaction
	gatherTimers       map[[12]byte]*rto.Timer
	gatherer           *gatherer

	selectedPair      *CandidatePair
	connectedEmitted  bool
	failedEmitted     bool
	gatheringComplete bool
	endOfCandidates   bool

	haveStarted bool
	closed      bool

	mailbox chan func()
	done    chan struct{}
	conns   []Conn

	onEvent AgentEventHandler

	log       logging.LeveledLogger
	checkLog  logging.LeveledLogger
	gatherLog logging.LeveledLogger
}

// NewAgent validates cfg, applies defaults, and returns an unstarted
// Agent. Host-candidate gathering and the Ta ticker only begin once
// Run is called (spec.md §4.5.1).
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Role != ControllingRole && cfg.Role != ControlledRole {
		return nil, ErrNoRole
	}
	cfg.setDefaults()

	a := &Agent{
		cfg:         cfg,
		role:        cfg.Role,
		tieBreaker:  newTieBreaker(),
		connChecks:  make(map[[12]byte]*CandidatePair),
		checkTimers: make(map[[12]byte]*rto.Timer),
		gatherTimers: make(map[[12]byte]*rto.Timer),
		mailbox:     make(chan func(), 256),
		done:        make(chan struct{}),
		onEvent:     cfg.EventHandler,
		log:         cfg.LoggerFactory.NewLogger("ice"),
		checkLog:    cfg.LoggerFactory.NewLogger("ice-check"),
		gatherLog:   cfg.LoggerFactory.NewLogger("ice-gather"),
	}
	a.gatherer = newGatherer(cfg.Net, cfg.IPFilter, a.gatherLog)
	go a.run()
	return a, nil
}

// generateCredential returns n cryptographically random characters
// drawn from an alphanumeric alphabet, used for the short-term
// credential pair of spec.md §4.5.1. It uses the corpus's
// randutil.GenerateCryptoRandomString the same way rtpsender.go
// generates track ids. The result is a random alphanumeric string, not
// the base64 encoding of random bytes.
func generateCredential(n int) (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	return randutil.GenerateCryptoRandomString(n, alphabet)
}

// Run starts the agent: generates local credentials, emits them
// upward, gathers host candidates, enqueues one srflx gathering
// transaction per (stun_server, host_candidate) pair, and starts the
// Ta ticker (spec.md §4.5.1). The work runs inside the mailbox loop.
func (a *Agent) Run() error {
	result := make(chan error, 1)
	a.dispatch(func() { result <- a.start() })
	select {
	case err := <-result:
		return err
	case <-a.done:
		return ErrClosed
	}
}

// start is Run's body, executed on the mailbox goroutine.
func (a *Agent) start() error {
	if a.haveStarted {
		return ErrAlreadyStarted
	}
	a.haveStarted = true

	ufrag, err := generateCredential(4) // 4 alphanumeric chars
	if err != nil {
		return errors.Wrap(err, "ice: failed to generate local ufrag")
	}
	pwd, err := generateCredential(22) // 22 alphanumeric chars
	if err != nil {
		return errors.Wrap(err, "ice: failed to generate local pwd")
	}
	a.localUfrag, a.localPwd = ufrag, pwd
	a.onEvent.localCredentials(LocalCredentials{Ufrag: ufrag, Pwd: pwd})

	hostCands, err := a.gatherer.gatherHostCandidates()
	if err != nil {
		return errors.Wrap(err, "ice: failed to gather host candidates")
	}
	for _, hc := range hostCands {
		a.localCandidates = append(a.localCandidates, hc.candidate)
		a.conns = append(a.conns, hc.conn)
		a.emitNewCandidate(hc.candidate)
		go a.readLoop(hc.conn)
	}

	for _, server := range a.cfg.STUNServers {
		for _, hc := range hostCands {
			a.gatherTransactions = append(a.gatherTransactions, &gatherTransaction{
				state:         gatherWaiting,
				server:        server,
				hostCandidate: hc,
			})
		}
	}
	if len(a.gatherTransactions) == 0 {
		a.gatheringComplete = true
		a.onEvent.gatheringComplete()
	}

	go a.runTicker()
	return nil
}

// readLoop forwards datagrams arriving on conn into the mailbox,
// serialising them with every other event per spec.md §5.
func (a *Agent) readLoop(conn Conn) {
	buf := make([]byte, 1500)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := append([]byte(nil), buf[:n]...)
		a.post(func() { a.handleInboundSTUN(conn, data, src) })
	}
}

// runTicker fires the Ta tick (spec.md §4.5.1 "Ta tick ... fires every
// Ta = 50ms until a pair is selected").
func (a *Agent) runTicker() {
	ticker := time.NewTicker(a.cfg.Ta)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.post(a.onTaTick)
		case <-a.done:
			return
		}
	}
}

// post delivers fn to the mailbox. It is the only way any goroutine
// other than the mailbox loop itself touches Agent state, implementing
// the actor model of spec.md §5.
func (a *Agent) post(fn func()) {
	select {
	case a.mailbox <- fn:
	case <-a.done:
	}
}

// run is the mailbox loop: every externally visible call and every
// internal event is a func() posted here and executed atomically with
// respect to every other one (spec.md §5).
func (a *Agent) run() {
	for {
		select {
		case fn := <-a.mailbox:
			fn()
		case <-a.done:
			return
		}
	}
}

// SetRemoteCredentials implements spec.md §6's
// set_remote_credentials. The update is posted through the mailbox
// like everything else; the mailbox loop runs from NewAgent on, so it
// may be called before or after Run.
func (a *Agent) SetRemoteCredentials(ufrag, pwd string) error {
	if a.closed {
		return ErrClosed
	}
	if ufrag == "" {
		return ErrRemoteUfragEmpty
	}
	if pwd == "" {
		return ErrRemotePwdEmpty
	}
	done := make(chan error, 1)
	a.dispatch(func() {
		if a.closed {
			done <- ErrClosed
			return
		}
		a.remoteUfrag, a.remotePwd = ufrag, pwd
		a.haveRemoteCredentials = true
		done <- nil
	})
	return <-done
}

// AddRemoteCandidate implements spec.md §6's add_remote_candidate:
// forms pairs against every compatible local candidate and inserts
// them into the checklist (spec.md §4.3, invariant 5: "Checklist is
// free of duplicates under the pruning key" — Insert/InsertPair always
// re-prune, so applying the same candidate twice is idempotent).
func (a *Agent) AddRemoteCandidate(c Candidate) {
	a.dispatch(func() {
		for _, existing := range a.remoteCandidates {
			if existing.Equal(c) {
				return
			}
		}
		a.remoteCandidates = append(a.remoteCandidates, c)
		a.pairAgainstRemote(c)
	})
}

// pairAgainstRemote forms a pair between every local candidate of a
// compatible address family and remote, then inserts each (spec.md §4.3).
func (a *Agent) pairAgainstRemote(remote Candidate) {
	for _, local := range a.localCandidates {
		if local.NetworkType() != remote.NetworkType() {
			continue
		}
		if a.checklist.Find(local, remote) != nil {
			continue
		}
		a.checklist.Insert(local, remote, a.role)
	}
}

// EndOfCandidates implements spec.md §4.5.3: the controlled role just
// records the fact; the controlling role promotes the best succeeded
// pair for nomination, or fails if none exists.
func (a *Agent) EndOfCandidates() {
	a.dispatch(func() {
		a.endOfCandidates = true
		if a.role == ControlledRole {
			return
		}
		a.maybeNominateOrFail()
	})
}

// SelectedPair returns the currently selected pair, or nil.
func (a *Agent) SelectedPair() *CandidatePair {
	result := make(chan *CandidatePair, 1)
	a.dispatch(func() { result <- a.selectedPair })
	return <-result
}

// Close implements spec.md §5 "top-level shutdown cancels the Ta timer
// and discards the mailbox."
func (a *Agent) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	close(a.done)
	for _, c := range a.conns {
		c.Close() // nolint:errcheck
	}
	return nil
}

// dispatch posts fn to run inside the mailbox loop. The loop is started
// by NewAgent, so SetRemoteCredentials/AddRemoteCandidate work before
// or after Run, including in tests that never call Run. After Close, fn
// is dropped.
func (a *Agent) dispatch(fn func()) {
	select {
	case a.mailbox <- fn:
	case <-a.done:
	}
}

// onTaTick implements spec.md §4.5.1's Ta tick body.
func (a *Agent) onTaTick() {
	if a.selectedPair != nil {
		return
	}
	if advanced := a.advanceOneGatherTransaction(); advanced {
		return
	}

	if waiting := a.checklist.HighestWaiting(); waiting != nil {
		a.sendConnectivityCheck(waiting)
		return
	}

	if !a.checklist.Any(PairStateWaiting) && !a.checklist.Any(PairStateInProgress) && a.role == ControllingRole {
		a.maybeNominateOrFail()
	}
}

// maybeNominateOrFail implements spec.md §4.5.1 step 2 / §4.5.3: a
// controlling agent with nothing left to check promotes its best
// succeeded pair for nomination, or fails if it has none.
func (a *Agent) maybeNominateOrFail() {
	if a.checklist.Any(PairStateWaiting) || a.checklist.Any(PairStateInProgress) {
		return
	}
	best := a.checklist.HighestSucceeded()
	if best == nil {
		a.emitFailedOnce()
		return
	}
	if best.Nominated {
		return
	}
	best.Nominate = true
	best.State = PairStateWaiting
}

func (a *Agent) emitFailedOnce() {
	if a.failedEmitted {
		return
	}
	a.failedEmitted = true
	a.onEvent.failed()
}

func (a *Agent) rtoFactory() *rto.Timer {
	return rto.NewTimer(rto.DefaultRTO, a.cfg.MaxBindingRequestRetries)
}

// watchCheckTimer retransmits or fails the connectivity check owning
// tid, implementing spec.md §4.4.4 (open question 1: "Implementations
// MUST add the RTO schedule from RFC 5389 §7.2.1").
func (a *Agent) watchCheckTimer(tid [12]byte, t *rto.Timer) {
	for range t.C() {
		retransmit := false
		done := make(chan struct{})
		a.post(func() {
			defer close(done)
			pair, ok := a.connChecks[tid]
			if !ok {
				t.Stop()
				return
			}
			retransmit = t.Fired()
			if !retransmit {
				pair.State = PairStateFailed
				delete(a.connChecks, tid)
				delete(a.checkTimers, tid)
				a.checklist.unfreezeOneFrozenPair()
				return
			}
			a.retransmitCheck(pair, tid)
		})
		<-done
		if !retransmit {
			return
		}
	}
}

// retransmitCheck resends the same request (same transaction id isn't
// reused by pion/stun's Build, so this issues a fresh transaction and
// rekeys connChecks, matching real STUN retransmission semantics where
// only the content is identical, not the wire transaction id slot
// tracking on our side).
func (a *Agent) retransmitCheck(pair *CandidatePair, oldTid [12]byte) {
	delete(a.connChecks, oldTid)
	a.sendConnectivityCheck(pair)
}
