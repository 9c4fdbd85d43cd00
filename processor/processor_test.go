package processor

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type Caller struct {
	mu    sync.Mutex
	flag  bool
	order []string
}

func (c *Caller) Flip() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flag = !c.flag
	return nil
}

func (c *Caller) Record(name string) func() error {
	return func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.order = append(c.order, name)
		return nil
	}
}

func (c *Caller) Fail() error {
	return fmt.Errorf("operation failed")
}

func newProcessor(t *testing.T) *Processor {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return New(time.Minute*1, logger.Sugar())
}

func TestProcessStopSignal(t *testing.T) {
	c := &Caller{}
	p := newProcessor(t)
	require.NoError(t, p.Register(Shutdown, "first", c.Record("first")))
	require.NoError(t, p.Register(Shutdown, "failed", c.Fail))
	require.NoError(t, p.Register(Shutdown, "second", c.Record("second")))
	require.NoError(t, p.Register(Shutdown, "third", c.Record("third")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.wg.Add(1)
	p.processStopSignal(ctx, cancel)
	assert.Equal(t, []string{"first", "second", "third"}, c.order)
}

func TestStop(t *testing.T) {
	c := &Caller{}
	p := newProcessor(t)
	require.NoError(t, p.Register(Shutdown, "flip", c.Flip))
	require.NoError(t, p.Run())
	p.Stop()
	p.Stop()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("processor did not stop")
	}
	assert.True(t, c.flag)
}

func TestForcedExit(t *testing.T) {
	p := newProcessor(t)
	p.ForceShutdownTimeout = 10 * time.Millisecond
	exited := make(chan int, 1)
	p.exit = func(code int) { exited <- code }
	release := make(chan struct{})
	require.NoError(t, p.Register(Shutdown, "hang", func() error {
		<-release
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.wg.Add(1)
	go p.processStopSignal(ctx, cancel)
	assert.Equal(t, 1, <-exited)
	close(release)
	p.Wait()
}

func TestProcessReloadSignal(t *testing.T) {
	c := &Caller{}
	flipped := !c.flag
	p := newProcessor(t)
	require.NoError(t, p.Register(Reload, "flip", c.Flip))
	require.NoError(t, p.Register(Reload, "failed", c.Fail))
	ctx, cancel := context.WithCancel(context.Background())
	tf := time.AfterFunc(1*time.Second, func() {
		cancel()
	})
	defer tf.Stop()
	signal.Notify(p.rChan, syscall.SIGHUP)
	syscall.Kill(syscall.Getpid(), syscall.SIGHUP)
	p.wg.Add(1)
	p.processReloadSignal(ctx, context.CancelFunc(func() {}))
	assert.Equal(t, flipped, c.flag)
}

func TestProcessRegister(t *testing.T) {
	c := &Caller{}
	p := newProcessor(t)
	assert.NoError(t, p.Register(Reload, "flip", c.Flip))
	assert.NoError(t, p.Register(Shutdown, "flip", c.Flip))
	assert.Error(t, p.Register("foo", "flip", c.Flip))
}
