package shutdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meatycapture/internal/logger"
)

func TestManager_ShutdownReverseOrderOnce(t *testing.T) {
	m := NewManager(logger.Nop())

	var mu sync.Mutex
	var order []string
	record := func(name string) Func {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	m.Register("registry", record("registry"))
	m.Register("host", record("host"))

	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, []string{"host", "registry"}, order)
	assert.Error(t, m.Context().Err())
	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestManager_SlowComponentDoesNotBlockForever(t *testing.T) {
	m := NewManager(logger.Nop())
	m.timeout = 20 * time.Millisecond

	release := make(chan struct{})
	defer close(release)
	m.Register("stuck", Func(func() { <-release }))

	finished := make(chan struct{})
	go func() {
		m.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("shutdown blocked on stuck component")
	}
}
