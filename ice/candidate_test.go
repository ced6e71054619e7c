package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateType_String(t *testing.T) {
	testCases := []struct {
		typ      CandidateType
		expected string
	}{
		{CandidateTypeHost, "host"},
		{CandidateTypeServerReflexive, "srflx"},
		{CandidateTypePeerReflexive, "prflx"},
		{CandidateTypeRelay, "relay"},
		{CandidateType(0), "unknown"},
	}

	for i, testCase := range testCases {
		assert.Equal(t, testCase.expected, testCase.typ.String(), "testCase: %d", i)
	}
}

func TestNewCandidate_InvalidType(t *testing.T) {
	_, err := NewCandidate(CandidateType(99), "10.0.0.1", 1234, "10.0.0.1", 1234, 65535, nil)
	assert.ErrorIs(t, err, ErrInvalidCandidateType)
}

func TestComputePriority(t *testing.T) {
	// RFC 8445 §5.1.2.1: priority = 2^24*typePref + 2^8*localPref + (256-componentID).
	host, err := NewCandidate(CandidateTypeHost, "10.0.0.1", 1234, "10.0.0.1", 1234, 65535, nil)
	assert.NoError(t, err)
	assert.Equal(t, uint32(126)<<24|uint32(65535)<<8|255, host.Priority())

	srflx, err := NewCandidate(CandidateTypeServerReflexive, "1.2.3.4", 1234, "10.0.0.1", 1234, 65535, nil)
	assert.NoError(t, err)
	assert.True(t, host.Priority() > srflx.Priority(), "host candidates must outrank srflx at equal local preference")
}

func TestCandidateEqual(t *testing.T) {
	a, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1234, "10.0.0.1", 1234, 65535, nil)
	b, _ := NewCandidate(CandidateTypeHost, "10.0.0.1", 1234, "10.0.0.1", 1234, 1, nil)
	c, _ := NewCandidate(CandidateTypeHost, "10.0.0.2", 1234, "10.0.0.2", 1234, 65535, nil)

	assert.True(t, a.Equal(b), "address tuple equality ignores priority")
	assert.False(t, a.Equal(c))
}

func TestCandidateMarshalUnmarshal(t *testing.T) {
	host, err := NewCandidate(CandidateTypeHost, "10.0.0.1", 4444, "10.0.0.1", 4444, 65535, nil)
	assert.NoError(t, err)

	back, err := UnmarshalCandidate(host.Marshal())
	assert.NoError(t, err)
	assert.Equal(t, host.Type(), back.Type())
	assert.Equal(t, host.Address(), back.Address())
	assert.Equal(t, host.Port(), back.Port())
	assert.Equal(t, host.Priority(), back.Priority())
	assert.Equal(t, host.Foundation(), back.Foundation())

	srflx := NewPeerReflexiveCandidate("1.2.3.4", 9999, "10.0.0.1", 4444, 555, nil)
	back, err = UnmarshalCandidate(srflx.Marshal())
	assert.NoError(t, err)
	assert.Equal(t, CandidateTypePeerReflexive, back.Type())
	assert.Equal(t, "10.0.0.1", back.BaseAddress())
	assert.Equal(t, 4444, back.BasePort())
}

func TestUnmarshalCandidate_Malformed(t *testing.T) {
	testCases := []string{
		"",
		"foundation 1 udp",
		"foundation 1 udp 100 10.0.0.1 1234 nottyp host",
		"foundation 1 udp 100 10.0.0.1 1234 typ bogus",
	}
	for i, raw := range testCases {
		_, err := UnmarshalCandidate(raw)
		assert.ErrorIs(t, err, ErrMalformedCandidateString, "testCase: %d", i)
	}
}
