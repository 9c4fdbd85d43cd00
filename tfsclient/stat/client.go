package stat

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	pb "github.com/rarydzu/tfs/proto"
)

// DevRunEnv names the variable that allows an insecure connection when no
// certificate directory is given. Its value is logged as the reason.
const DevRunEnv = "TFS_DEV_RUN"

// Client is a client for the tfs stat server.
type Client struct {
	conn *grpc.ClientConn
	pb.StatClient
}

// StatResponse is the decoded stat reply.
type StatResponse struct {
	ID           string
	Name         string
	BlockSize    uint32
	Blocks       uint64
	BlocksFree   uint64
	Inodes       uint64
	InodesFree   uint64
	OpenFiles    uint64
	OpenFilesMax uint64
	DirEntries   uint64
	DirCapacity  uint64
	RSS          uint64
}

// NewConnection dials address with the TLS material in certDir.
func NewConnection(address, certDir string, log *zap.SugaredLogger) (*grpc.ClientConn, error) {
	if len(certDir) == 0 {
		testrun := os.Getenv(DevRunEnv)
		if len(testrun) == 0 {
			return nil, fmt.Errorf("Stat Client: certDir is empty")
		}
		log.Infof("running insecure client reason: %s", testrun)
		return grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	caPem, err := os.ReadFile(filepath.Join(certDir, "ca-cert.pem"))
	if err != nil {
		return nil, err
	}
	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(caPem) {
		return nil, fmt.Errorf("Stat Client: no certificates in %s/ca-cert.pem", certDir)
	}
	clientCert, err := tls.LoadX509KeyPair(
		filepath.Join(certDir, "client-cert.pem"),
		filepath.Join(certDir, "client-key.pem"),
	)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      certPool,
	}
	return grpc.Dial(address, grpc.WithTransportCredentials(credentials.NewTLS(config)))
}

// New is a constructor for Client
func New(conn *grpc.ClientConn) *Client {
	return &Client{
		conn:       conn,
		StatClient: pb.NewStatClient(conn),
	}
}

// Stat function return stat information about filesystem
func (c *Client) Stat(ctx context.Context, fs string) (*StatResponse, error) {
	rsp, err := c.StatClient.Stat(ctx, wrapperspb.String(fs))
	if err != nil {
		return nil, err
	}
	fields := rsp.GetFields()
	number := func(key string) uint64 {
		return uint64(fields[key].GetNumberValue())
	}
	return &StatResponse{
		ID:           fields[pb.KeyID].GetStringValue(),
		Name:         fields[pb.KeyName].GetStringValue(),
		BlockSize:    uint32(number(pb.KeyBlockSize)),
		Blocks:       number(pb.KeyBlocks),
		BlocksFree:   number(pb.KeyBlocksFree),
		Inodes:       number(pb.KeyInodes),
		InodesFree:   number(pb.KeyInodesFree),
		OpenFiles:    number(pb.KeyOpenFiles),
		OpenFilesMax: number(pb.KeyOpenFilesMax),
		DirEntries:   number(pb.KeyDirEntries),
		DirCapacity:  number(pb.KeyDirCapacity),
		RSS:          number(pb.KeyRSS),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
