package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T, role Role, onConnected func()) *Agent {
	t.Helper()
	a, err := NewAgent(AgentConfig{
		Role: role,
		EventHandler: AgentEventHandler{
			OnConnected: onConnected,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// TestConnectivityCheckRoundTrip drives a full binding-request/response
// exchange between a controlling and a controlled agent over in-memory
// fakeConns, exercising sendConnectivityCheck, handleBindingRequest,
// sendBindingSuccess, and handleCheckResponse's "V equiv C" promotion
// path together (spec.md §4.4.1-§4.4.3).
func TestConnectivityCheckRoundTrip(t *testing.T) {
	var aConnected, bConnected bool
	a := newTestAgent(t, ControllingRole, func() { aConnected = true })
	b := newTestAgent(t, ControlledRole, func() { bConnected = true })

	a.localUfrag, a.localPwd = "aufrag", "apwd"
	a.remoteUfrag, a.remotePwd = "bufrag", "bpwd"
	b.localUfrag, b.localPwd = "bufrag", "bpwd"
	b.remoteUfrag, b.remotePwd = "aufrag", "apwd"

	connA := newFakeConn("10.0.0.1", 10000)
	connB := newFakeConn("10.0.0.2", 20000)
	pipeFakeConns(connA, connB)

	candA, err := NewHostCandidate("10.0.0.1", 10000, 65535, connA)
	require.NoError(t, err)
	candB, err := NewHostCandidate("10.0.0.2", 20000, 65535, connB)
	require.NoError(t, err)

	a.localCandidates = []Candidate{candA}
	a.remoteCandidates = []Candidate{candB}
	pairA := a.checklist.Insert(candA, candB, ControllingRole)

	b.localCandidates = []Candidate{candB}
	b.remoteCandidates = []Candidate{candA}
	b.checklist.Insert(candB, candA, ControlledRole)

	a.sendConnectivityCheck(pairA)

	// Deliver the request to B.
	buf := make([]byte, 1500)
	n, src, err := connB.ReadFrom(buf)
	require.NoError(t, err)
	b.handleInboundSTUN(connB, buf[:n], src)

	// Deliver B's response back to A.
	n, src, err = connA.ReadFrom(buf)
	require.NoError(t, err)
	a.handleInboundSTUN(connA, buf[:n], src)

	assert.Equal(t, PairStateSucceeded, pairA.State)
	assert.True(t, pairA.Valid)
	assert.True(t, aConnected, "controlling agent must observe :connected")
	assert.False(t, bConnected, "answering a request validates no pair of the controlled agent's own, so it must not emit :connected yet")
}

func TestSetRemoteCredentialsValidation(t *testing.T) {
	a := newTestAgent(t, ControllingRole, nil)

	assert.ErrorIs(t, a.SetRemoteCredentials("", "pwd"), ErrRemoteUfragEmpty)
	assert.ErrorIs(t, a.SetRemoteCredentials("ufrag", ""), ErrRemotePwdEmpty)
	assert.NoError(t, a.SetRemoteCredentials("ufrag", "pwd"))
}

func TestNewAgentRejectsUnknownRole(t *testing.T) {
	_, err := NewAgent(AgentConfig{})
	assert.ErrorIs(t, err, ErrNoRole)
}

func TestSelectPairStrictlyIncreasing(t *testing.T) {
	a := newTestAgent(t, ControllingRole, nil)

	low := &CandidatePair{ID: mustUUID(), Priority: 10}
	high := &CandidatePair{ID: mustUUID(), Priority: 20}

	a.selectPair(low)
	assert.Same(t, low, a.selectedPair)

	// A lower-or-equal priority must never replace the current
	// selection (spec.md invariant 3).
	a.selectPair(&CandidatePair{ID: mustUUID(), Priority: 10})
	assert.Same(t, low, a.selectedPair)

	a.selectPair(high)
	assert.Same(t, high, a.selectedPair)
}

func TestCloseIsIdempotent(t *testing.T) {
	a := newTestAgent(t, ControllingRole, nil)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func mustUUID() (id [16]byte) {
	// A fixed, non-zero value is enough for identity comparisons in
	// these unit tests; the real ID comes from google/uuid.New() in
	// production code (ice/candidatepair.go).
	id[0] = 1
	return id
}
