package worker

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jinzhu/copier"
	pb "github.com/rarydzu/tfs/proto"
	"github.com/rarydzu/tfs/processor"
	"github.com/rarydzu/tfs/tfs"
	"github.com/rarydzu/tfs/tfs/config"
	"github.com/rarydzu/tfs/tfsfuse"
	statserver "github.com/rarydzu/tfs/tfsserver/stat"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Worker runs one engine with its stat server and, when a mountpoint is
// configured, a FUSE mount.
type Worker struct {
	active bool
	sync.RWMutex
	Processor  *processor.Processor
	log        *zap.SugaredLogger
	fs         *tfs.Tfs
	fsServer   fuse.Server
	fusemfs    *fuse.MountedFileSystem
	grpcServer *grpc.Server
	statLis    net.Listener
	cfg        *config.Config
}

func New(cfg *config.Config, log *zap.SugaredLogger) (*Worker, error) {
	w := &Worker{
		Processor: nil,
		log:       log,
		cfg:       &config.Config{},
		fusemfs:   nil,
		fsServer:  nil,
	}
	if err := copier.Copy(&w.cfg, cfg); err != nil {
		return nil, err
	}
	fs, err := tfs.New(w.cfg, w.log)
	if err != nil {
		return nil, err
	}
	w.fs = fs
	if w.cfg.Mountpoint != "" {
		server, err := tfsfuse.NewServer(fs, w.log)
		if err != nil {
			return nil, err
		}
		w.fsServer = server
	}
	return w, nil
}

// FS returns the engine served by the worker.
func (w *Worker) FS() *tfs.Tfs {
	return w.fs
}

// StatAddr returns the address the stat server listens on, or nil.
func (w *Worker) StatAddr() net.Addr {
	w.RLock()
	defer w.RUnlock()
	if w.statLis == nil {
		return nil
	}
	return w.statLis.Addr()
}

func (w *Worker) Start() error {
	w.Lock()
	defer w.Unlock()
	if w.active {
		return fmt.Errorf("Worker already active")
	}
	w.active = true
	w.Processor = processor.New(w.cfg.ShutdownTimeout, w.log)
	if w.cfg.StatAddress != "" {
		lis, err := net.Listen("tcp", w.cfg.StatAddress)
		if err != nil {
			return fmt.Errorf("stat listen: %v", err)
		}
		w.statLis = lis
		w.grpcServer = grpc.NewServer()
		pb.RegisterStatServer(w.grpcServer, statserver.New(w.fs, w.log))
		go func() {
			if err := w.grpcServer.Serve(lis); err != nil {
				w.log.Errorf("failed to serve: %v", err)
			}
		}()
		if err := w.Processor.Register(processor.Shutdown, "stat server", w.stopStat); err != nil {
			return err
		}
		w.log.Infof("stat server listening on %s", lis.Addr())
	}
	if w.fsServer != nil {
		if err := w.Processor.Register(processor.Shutdown, "filesystem", w.Umount); err != nil {
			return err
		}
		mfs, err := fuse.Mount(w.cfg.Mountpoint, w.fsServer, w.cfg.FuseCfg)
		if err != nil {
			if w.grpcServer != nil {
				w.grpcServer.Stop()
			}
			return fmt.Errorf("Mount: %v", err)
		}
		w.fusemfs = mfs
		w.log.Infof("filesystem %s mounted on %s", w.fs.Name, w.cfg.Mountpoint)
	} else {
		// a mounted engine is destroyed by the fuse server on unmount
		if err := w.Processor.Register(processor.Shutdown, "engine", w.fs.Destroy); err != nil {
			return err
		}
	}
	return w.Processor.Run()
}

// Stop triggers the shutdown sequence.
func (w *Worker) Stop() {
	w.RLock()
	defer w.RUnlock()
	if w.Processor != nil {
		w.Processor.Stop()
	}
}

func (w *Worker) stopStat() error {
	w.grpcServer.GracefulStop()
	return nil
}

func (w *Worker) Umount() error {
	tStart := time.Now()
	delay := 10 * time.Millisecond
	for {
		if time.Since(tStart) > w.cfg.ShutdownTimeout/2 {
			w.log.Infof("Timeout exceeded; killing processes")
			if err := w.Kill(); err != nil {
				w.log.Errorf("error killing processes: %v", err)
			}
		}
		err := fuse.Unmount(w.cfg.Mountpoint)
		if err == nil {
			return err
		}
		if strings.Contains(err.Error(), "resource busy") {
			w.log.Infof("Resource busy error while unmounting; trying again")
			time.Sleep(delay)
			delay = time.Duration(1.3 * float64(delay))
			continue
		}
		return fmt.Errorf("unmount (%s): %v", w.cfg.Mountpoint, err)
	}
}

// Kill processes holding files open under the mountpoint
func (w *Worker) Kill() error {
	myPid := os.Getpid()
	processes, err := process.Processes()
	if err != nil {
		return err
	}
	for _, p := range processes {
		if p.Pid == int32(myPid) {
			continue
		}
		openFiles, err := p.OpenFiles()
		if err != nil {
			continue
		}
		for _, f := range openFiles {
			if strings.HasPrefix(f.Path, w.cfg.Mountpoint) {
				w.log.Infof("Killing process %d", p.Pid)
				if err := p.Kill(); err != nil {
					w.log.Errorf("error killing process %d: %v", p.Pid, err)
				}
				break
			}
		}
	}
	return nil
}

func (w *Worker) Wait() {
	w.Processor.Wait()
	if w.fusemfs != nil {
		if err := w.fusemfs.Join(context.Background()); err != nil {
			w.log.Errorf("tfs join: %v", err)
		}
	}
}
