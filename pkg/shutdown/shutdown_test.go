package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdown_ReverseOrderAndIdempotent(t *testing.T) {
	m := NewManager()
	var order []string
	m.OnShutdown("recorder", func(context.Context) error { order = append(order, "recorder"); return nil })
	m.OnShutdown("secrets", func(context.Context) error { order = append(order, "secrets"); return errors.New("busy") })
	m.OnShutdown("metrics", func(context.Context) error { order = append(order, "metrics"); return nil })

	assert.Equal(t, 1, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"metrics", "secrets", "recorder"}, order)

	assert.Equal(t, 0, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdown_CancelledContext(t *testing.T) {
	m := NewManager()
	called := false
	m.OnShutdown("a", func(context.Context) error { called = true; return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 1, m.Shutdown(ctx))
	assert.False(t, called)
}
