package stat

import (
	"context"
	"net"
	"strings"
	"testing"

	pb "github.com/rarydzu/tfs/proto"
	"github.com/rarydzu/tfs/tfs"
	"github.com/rarydzu/tfs/tfs/config"
	statserver "github.com/rarydzu/tfs/tfsserver/stat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestStatOverGRPC(t *testing.T) {
	fs, err := tfs.New(config.Default(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer fs.Destroy()
	require.NoError(t, fs.CopyFromExternal(strings.NewReader("payload"), "/box"))

	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	pb.RegisterStatServer(grpcServer, statserver.New(fs, zap.NewNop().Sugar()))
	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client := New(conn)
	defer client.Close()

	rsp, err := client.Stat(context.Background(), fs.Name)
	require.NoError(t, err)
	assert.Equal(t, fs.ID, rsp.ID)
	assert.Equal(t, fs.Name, rsp.Name)
	assert.Equal(t, uint32(config.DefaultBlockSize), rsp.BlockSize)
	assert.Equal(t, uint64(config.DefaultMaxBlockCount), rsp.Blocks)
	assert.Equal(t, uint64(config.DefaultMaxBlockCount-2), rsp.BlocksFree)
	assert.Equal(t, uint64(1), rsp.DirEntries)
	assert.Equal(t, uint64(0), rsp.OpenFiles)
	assert.True(t, rsp.RSS > 0)
}

func TestNewConnectionNeedsCerts(t *testing.T) {
	t.Setenv(DevRunEnv, "")
	_, err := NewConnection("localhost:0", "", zap.NewNop().Sugar())
	assert.Error(t, err)

	t.Setenv(DevRunEnv, "TestNewConnectionNeedsCerts")
	conn, err := NewConnection("localhost:0", "", zap.NewNop().Sugar())
	require.NoError(t, err)
	conn.Close()

	_, err = NewConnection("localhost:0", t.TempDir(), zap.NewNop().Sugar())
	assert.Error(t, err)
}
