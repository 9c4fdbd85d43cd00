package stat

import (
	"context"
	"testing"

	pb "github.com/rarydzu/tfs/proto"
	"github.com/rarydzu/tfs/tfs"
	"github.com/rarydzu/tfs/tfs/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestStat(t *testing.T) {
	fs, err := tfs.New(config.Default(), zap.NewNop().Sugar())
	require.NoError(t, err)
	h, err := fs.Open("/box", tfs.OCreate)
	require.NoError(t, err)
	_, err = fs.Write(h, []byte("x"))
	require.NoError(t, err)

	s := New(fs, zap.NewNop().Sugar())
	rsp, err := s.Stat(context.Background(), wrapperspb.String(fs.Name))
	require.NoError(t, err)
	fields := rsp.GetFields()
	assert.Equal(t, fs.ID, fields[pb.KeyID].GetStringValue())
	assert.Equal(t, float64(1024), fields[pb.KeyBlockSize].GetNumberValue())
	assert.Equal(t, float64(1022), fields[pb.KeyBlocksFree].GetNumberValue())
	assert.Equal(t, float64(62), fields[pb.KeyInodesFree].GetNumberValue())
	assert.Equal(t, float64(1), fields[pb.KeyOpenFiles].GetNumberValue())
	assert.Equal(t, float64(1), fields[pb.KeyDirEntries].GetNumberValue())
	assert.True(t, fields[pb.KeyRSS].GetNumberValue() > 0)

	_, err = s.Stat(context.Background(), wrapperspb.String("other"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	require.NoError(t, fs.Destroy())
	_, err = s.Stat(context.Background(), wrapperspb.String(""))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
