package all

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"flat", "hunter", "strike"}, r.IDs())

	for _, id := range r.IDs() {
		s, anomalies, err := r.Build(id, nil)
		require.NoError(t, err, id)
		assert.Empty(t, anomalies, id)
		assert.Equal(t, id, s.ID())
	}

	// 每次构建都是独立的注册表
	r2, err := NewRegistry()
	require.NoError(t, err)
	assert.NotSame(t, r, r2)
}
