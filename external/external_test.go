package external

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(data))}, nil
}

func readAll(t *testing.T, r io.ReadCloser) string {
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(path, []byte("local bytes"), 0644))

	r, err := Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "local bytes", readAll(t, r))

	r, err = Open(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "local bytes", readAll(t, r))

	_, err = Open(context.Background(), path+".missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenS3(t *testing.T) {
	o := &Opener{S3: &fakeS3{objects: map[string]string{"bucket/dir/key": "remote bytes"}}}
	r, err := o.Open(context.Background(), "s3://bucket/dir/key")
	require.NoError(t, err)
	assert.Equal(t, "remote bytes", readAll(t, r))

	_, err = o.Open(context.Background(), "s3://bucket/other")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = o.Open(context.Background(), "s3://bucket")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestUnsupported(t *testing.T) {
	for _, uri := range []string{"ftp://host/file", "https://example.com/file", "gs://bucket"} {
		_, err := Open(context.Background(), uri)
		assert.ErrorIs(t, err, ErrUnsupported, uri)
	}
}
