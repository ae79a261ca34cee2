package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_SameKeyKeepsOrder(t *testing.T) {
	dispatcher := NewDispatcher(4, 64, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	var mu sync.Mutex
	var order []int

	for i := 0; i < 20; i++ {
		i := i
		dispatcher.Submit(42, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	dispatcher.Stop()

	assert.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDispatcher_DifferentKeysRunInParallel(t *testing.T) {
	dispatcher := NewDispatcher(2, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	blocker := make(chan struct{})
	done := make(chan struct{})

	// 分片 0 被长任务占住
	dispatcher.Submit(0, func() { <-blocker })
	// 分片 1 的任务应当不受影响
	dispatcher.Submit(1, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task on free shard did not run while other shard was blocked")
	}

	close(blocker)
	dispatcher.Stop()
}

func TestDispatcher_TrySubmit(t *testing.T) {
	dispatcher := NewDispatcher(1, 1, nil)
	// 未启动：队列容量 1，第一条成功第二条失败
	assert.True(t, dispatcher.TrySubmit(7, func() {}))
	assert.False(t, dispatcher.TrySubmit(7, func() {}))
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	dispatcher := NewDispatcher(1, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	ran := make(chan struct{})
	dispatcher.Submit(1, func() { panic("boom") })
	dispatcher.Submit(1, func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not survive a panicking task")
	}

	dispatcher.Stop()
}

func TestDispatcher_NegativeKey(t *testing.T) {
	dispatcher := NewDispatcher(4, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	done := make(chan struct{})
	dispatcher.Submit(-123, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task with negative key did not run")
	}

	dispatcher.Stop()
}
