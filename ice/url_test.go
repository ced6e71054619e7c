package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseURL(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		testCases := []struct {
			rawURL       string
			expectedHost string
			expectedPort int
		}{
			{"stun:example.org", "example.org", 3478},
			{"stun:example.org:1234", "example.org", 1234},
			{"STUN:Example.Org:1234", "example.org", 1234},
		}

		for i, testCase := range testCases {
			u, err := ParseURL(testCase.rawURL)
			assert.NoError(t, err, "testCase: %d %v", i, testCase)
			assert.Equal(t, testCase.expectedHost, u.Host, "testCase: %d %v", i, testCase)
			assert.Equal(t, testCase.expectedPort, u.Port, "testCase: %d %v", i, testCase)
		}
	})

	t.Run("Failure", func(t *testing.T) {
		testCases := []struct {
			rawURL      string
			expectedErr error
		}{
			{"", ErrSchemeType},
			{"turn:example.org", ErrSchemeType},
			{"stun:", ErrHost},
			{"stun:example.org:abc", ErrPort},
			{"stun:example.org?transport=udp", ErrSTUNQuery},
		}

		for i, testCase := range testCases {
			_, err := ParseURL(testCase.rawURL)
			assert.ErrorIs(t, err, testCase.expectedErr, "testCase: %d %v", i, testCase)
		}
	})
}

func TestParseURLs(t *testing.T) {
	var dropped []string
	urls := ParseURLs([]string{"stun:a.example:1111", "garbage", "stun:b.example"}, func(uri string, err error) {
		dropped = append(dropped, uri)
	})

	assert.Len(t, urls, 2)
	assert.Equal(t, []string{"garbage"}, dropped)
}
