// SPDX-License-Identifier: Apache-2.0

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathSelf(t *testing.T) {
	p, err := ParsePath("$.a.b.c")
	require.NoError(t, err)
	assert.Equal(t, RootSelf, p.Root)
	assert.Equal(t, []string{"a", "b", "c"}, p.Segments)
	assert.Equal(t, "$.a.b.c", p.JSONPath())
	assert.Equal(t, "$.a.b.c", p.String())
}

func TestParsePathEndpoints(t *testing.T) {
	left, err := ParsePath("left.$.a.b")
	require.NoError(t, err)
	assert.Equal(t, RootLeft, left.Root)
	assert.Equal(t, "left.$.a.b", left.String())

	right, err := ParsePath("right.$.x")
	require.NoError(t, err)
	assert.Equal(t, RootRight, right.Root)
	assert.Equal(t, []string{"x"}, right.Segments)
}

func TestParsePathRoot(t *testing.T) {
	p, err := ParsePath("$")
	require.NoError(t, err)
	assert.Empty(t, p.Segments)
	assert.Equal(t, "$", p.JSONPath())
}

func TestParsePathRejectsMalformedSegments(t *testing.T) {
	cases := []string{"a.b", "$.1bad", "$.a-b", "$..b", "left.a.b"}
	for _, c := range cases {
		_, err := ParsePath(c)
		assert.Errorf(t, err, "expected %q to be rejected", c)
	}
}
