package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		l.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("loop did not exit")
		}
	})
	return l, cancel
}

func TestTasksRunInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, Do(context.Background(), l, func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTasksNeverInterleave(t *testing.T) {
	l, _ := startLoop(t)

	var (
		mu     sync.Mutex
		active int
		peak   int
	)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Post(func() {
					mu.Lock()
					active++
					if active > peak {
						peak = active
					}
					mu.Unlock()
					time.Sleep(50 * time.Microsecond)
					mu.Lock()
					active--
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, Do(context.Background(), l, func() {}))
	assert.Equal(t, 1, peak)
}

func TestPanickingTaskDoesNotKillLoop(t *testing.T) {
	l, _ := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, Do(context.Background(), l, func() { ran = true }))
	assert.True(t, ran)
}

func TestPostAfterStopIsRejected(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()

	cancel()
	<-done

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, Do(context.Background(), l, func() {}), ErrStopped)
	assert.ErrorIs(t, l.Run(context.Background()), ErrStopped)
}

func TestTasksPostedBeforeRunExecute(t *testing.T) {
	l := New(nil)
	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	assert.Equal(t, 1, l.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task never ran")
	}
	l.Stop()
}

func TestDoHonoursContext(t *testing.T) {
	l := New(nil) // never run
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Do(ctx, l, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManualDrain(t *testing.T) {
	m := NewManual()
	var got []string
	m.Post(func() {
		got = append(got, "a")
		m.Post(func() { got = append(got, "c") })
	})
	m.Post(func() { got = append(got, "b") })

	assert.Equal(t, 2, m.Pending())
	assert.Equal(t, 3, m.Drain())
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, m.Drain())

	m.Stop()
	assert.False(t, m.Post(func() {}))
}
