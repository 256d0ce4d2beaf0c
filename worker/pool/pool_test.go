package pool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestGroup_WaitsForAllLoops(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		g.Go("loop", func() {
			ran.Add(1)
		})
	}
	g.Wait()

	assert.Equal(t, int32(4), ran.Load())
}

func TestGroup_RecoversPanics(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))

	var survived atomic.Bool
	g.Go("panicky", func() {
		panic("boom")
	})
	g.Go("steady", func() {
		survived.Store(true)
	})
	g.Wait()

	assert.True(t, survived.Load(), "a panicking loop must not take down the group")
}
