package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTask(t *testing.T) {
	p := New(2, 4, nil)
	defer p.Close()

	var ran int32
	done := make(chan struct{})
	err := p.Submit(TaskFunc(func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		close(done)
		return nil
	}))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestClosedPoolRejectsSubmit(t *testing.T) {
	p := New(1, 1, nil)
	require.NoError(t, p.Close())
	err := p.Submit(TaskFunc(func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPanickingTaskDoesNotCrashPool(t *testing.T) {
	p := New(1, 2, nil)
	defer p.Close()

	err := p.Submit(TaskFunc(func(ctx context.Context) error {
		panic("boom")
	}))
	require.NoError(t, err)

	// Pool must still accept and run subsequent tasks.
	done := make(chan struct{})
	err = p.Submit(TaskFunc(func(ctx context.Context) error {
		close(done)
		return nil
	}))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped processing tasks after a panic")
	}
}
