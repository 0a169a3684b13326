package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBareNode(t *testing.T) {
	n, err := Parse("@@n1")
	require.NoError(t, err)
	assert.Equal(t, "n1", n.Node)
	assert.True(t, n.IsNode())
	assert.Equal(t, "@@n1", n.String())
}

func TestParseProfile(t *testing.T) {
	n, err := Parse("@@n1/main")
	require.NoError(t, err)
	assert.True(t, n.IsProfile())
	assert.Equal(t, "main", n.Profile)
}

func TestParseDevice(t *testing.T) {
	n, err := Parse("@@n1/main/device/main_device")
	require.NoError(t, err)
	assert.True(t, n.IsDevice())
	assert.Equal(t, EntityKindDevice, n.EntityKind)
	assert.Equal(t, "main_device", n.EntityName)
	assert.Equal(t, "@@n1/main", n.ProfileName().String())
	assert.Equal(t, "@@n1", n.NodeName().String())
}

func TestParseRejectsMissingPrefix(t *testing.T) {
	_, err := Parse("n1/main")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestParseRejectsBareEntityKind(t *testing.T) {
	_, err := Parse("@@n1/main/device")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestParseRejectsUnknownEntityKind(t *testing.T) {
	_, err := Parse("@@n1/main/robot/x1")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNameEqualIsByteExact(t *testing.T) {
	a, _ := Parse("@@n1/main")
	b, _ := Parse("@@n1/main")
	c, _ := Parse("@@n1/other")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
