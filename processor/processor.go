package processor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	Reload   = "reload"
	Shutdown = "shutdown"
)

type operation struct {
	name string
	call func() error
}

// Processor runs registered operations on SIGHUP (reload, concurrently) and
// on SIGINT/SIGTERM or Stop (shutdown, one by one in registration order).
type Processor struct {
	ForceShutdownTimeout time.Duration // force shudown timeout
	rChan                chan os.Signal
	stopChan             chan struct{}
	stopOnce             sync.Once
	shutOps              []operation
	reloadOps            []operation
	mu                   sync.Mutex
	wg                   sync.WaitGroup
	log                  *zap.SugaredLogger
	exit                 func(code int)
}

// New - creates new processor
func New(timeout time.Duration, log *zap.SugaredLogger) *Processor {
	return &Processor{
		ForceShutdownTimeout: timeout,
		rChan:                make(chan os.Signal, 1),
		stopChan:             make(chan struct{}),
		log:                  log,
		exit:                 os.Exit,
	}
}

// Run assign proper signals and starts processing
func (p *Processor) Run() error {
	p.spinup()
	return nil
}

// spinup - assigns signals to proper process... calls
func (p *Processor) spinup() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	signal.Notify(p.rChan, syscall.SIGHUP)
	ctxReload, cancel := context.WithCancel(context.Background())
	p.wg.Add(2)
	go p.processReloadSignal(ctxReload, stop)
	go p.processStopSignal(ctx, cancel)
}

// processReloadSignal reload all operations assigned to Reload
func (p *Processor) processReloadSignal(ctx context.Context, cancel context.CancelFunc) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.log.Infof("shutdown reload")
			signal.Stop(p.rChan)
			cancel() // release the stop signal context
			return
		case <-p.rChan:
			p.reload()
		}
	}
}

// processStopSignal executes the shutdown sequence on ctx cancellation or
// Stop and forces exit once ForceShutdownTimeout passes.
func (p *Processor) processStopSignal(ctx context.Context, cancel context.CancelFunc) {
	defer p.wg.Done()
	select {
	case <-ctx.Done():
	case <-p.stopChan:
	}
	tF := time.AfterFunc(p.ForceShutdownTimeout, func() {
		p.log.Warnf("timeout %d ms has been elapsed, force exit, umount fs manually", p.ForceShutdownTimeout.Milliseconds())
		p.exit(1)
	})
	defer tF.Stop()
	p.Shutdown()
	cancel() // cancel processReloadSignal
}

// Stop starts the shutdown sequence as if a signal arrived.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
}

// reload runs every reload operation concurrently.
func (p *Processor) reload() {
	p.mu.Lock()
	ops := append([]operation(nil), p.reloadOps...)
	p.mu.Unlock()
	var g errgroup.Group
	for _, op := range ops {
		op := op
		g.Go(func() error {
			if err := op.call(); err != nil {
				p.log.Warnf("%s %s: failed (%s)", Reload, op.name, err.Error())
				return err
			}
			p.log.Infof("%s %s: succeeded", Reload, op.name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Warnf("%s sequence completed with errors", Reload)
		return
	}
	p.log.Infof("%s sequence completed", Reload)
}

// Register register shutdown and reload operation
func (p *Processor) Register(process, operationName string, operationFunction func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	op := operation{name: operationName, call: operationFunction}
	switch process {
	case Shutdown:
		p.shutOps = append(p.shutOps, op)
	case Reload:
		p.reloadOps = append(p.reloadOps, op)
	default:
		return fmt.Errorf("%s process unknown", process)
	}
	return nil
}

// Shutdown runs the shutdown operations in registration order. A failed
// operation does not stop the sequence.
func (p *Processor) Shutdown() {
	p.mu.Lock()
	ops := append([]operation(nil), p.shutOps...)
	p.mu.Unlock()
	for _, op := range ops {
		if err := op.call(); err != nil {
			p.log.Warnf("%s %s: failed (%s)", Shutdown, op.name, err.Error())
			continue
		}
		p.log.Infof("%s %s: succeeded", Shutdown, op.name)
	}
	p.log.Infof("%s sequence completed", Shutdown)
}

func (p *Processor) Wait() {
	p.wg.Wait()
}
