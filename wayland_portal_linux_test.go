//go:build linux

package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileURI(t *testing.T) {
	cases := []struct {
		name string
		uri  string
		want string
		ok   bool
	}{
		{"plain file uri", "file:///run/user/1000/doc/shot.png", "/run/user/1000/doc/shot.png", true},
		{"not a file uri", "https://example.com/shot.png", "", false},
		{"missing scheme", "/tmp/shot.png", "", false},
		{"relative path", "file://tmp/shot.png", "", false},
		{"parent segment", "file:///tmp/../etc/passwd", "", false},
		{"current segment", "file:///tmp/./shot.png", "", false},
		{"trailing parent", "file:///tmp/..", "", false},
		{"trailing current", "file:///tmp/.", "", false},
		{"dotfile is fine", "file:///tmp/.hidden.png", "/tmp/.hidden.png", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseFileURI(tc.uri)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFirstStreamNodeIDNestedSlices(t *testing.T) {
	id, err := firstStreamNodeID([][]interface{}{{uint32(42), map[string]interface{}{}}})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)
}

func TestFirstStreamNodeIDFlatSlice(t *testing.T) {
	id, err := firstStreamNodeID([]interface{}{uint32(7)})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), id)

	id, err = firstStreamNodeID([]interface{}{[]interface{}{uint32(9), map[string]interface{}{}}})
	require.NoError(t, err)
	assert.Equal(t, uint32(9), id)
}

func TestFirstStreamNodeIDEmptyOrMalformed(t *testing.T) {
	_, err := firstStreamNodeID([][]interface{}{})
	require.Error(t, err)

	_, err = firstStreamNodeID([]interface{}{})
	require.Error(t, err)

	_, err = firstStreamNodeID("not a stream list")
	require.Error(t, err)
}
