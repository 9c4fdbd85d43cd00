// stat backend server for tfs
package stat

import (
	"context"
	"errors"
	"os"

	pb "github.com/rarydzu/tfs/proto"
	"github.com/rarydzu/tfs/tfs"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Server struct {
	pb.UnimplementedStatServer
	fs  *tfs.Tfs
	log *zap.SugaredLogger
}

// New is a constructor for Server
func New(fs *tfs.Tfs, log *zap.SugaredLogger) *Server {
	return &Server{
		fs:  fs,
		log: log,
	}
}

// Stat is a RPC for stat. An empty name means the served filesystem.
func (s *Server) Stat(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if name := in.GetValue(); name != "" && name != s.fs.Name {
		return nil, status.Errorf(codes.NotFound, "unknown filesystem %q", name)
	}
	st, err := s.fs.Stat()
	if err != nil {
		if errors.Is(err, tfs.ErrDestroyed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		s.log.Errorf("Stat: %v", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]interface{}{
		pb.KeyID:           s.fs.ID,
		pb.KeyName:         s.fs.Name,
		pb.KeyBlockSize:    st.BlockSize,
		pb.KeyBlocks:       st.BlocksTotal,
		pb.KeyBlocksFree:   st.BlocksTotal - st.BlocksUsed,
		pb.KeyInodes:       st.InodesTotal,
		pb.KeyInodesFree:   st.InodesTotal - st.InodesUsed,
		pb.KeyOpenFiles:    st.OpenFiles,
		pb.KeyOpenFilesMax: st.OpenFilesTotal,
		pb.KeyDirEntries:   st.DirEntries,
		pb.KeyDirCapacity:  st.DirCapacity,
		pb.KeyRSS:          s.rss(),
	})
}

// rss returns the resident set size of this process, 0 if unknown.
func (s *Server) rss() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.log.Debugf("rss: %v", err)
		return 0
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		s.log.Debugf("rss: %v", err)
		return 0
	}
	return mem.RSS
}
