// Package external opens the byte sources that can be imported into the
// engine: local files, S3 objects, GCS objects and Azure blobs.
package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"google.golang.org/api/option"
)

const azureBlobHostSuffix = ".blob.core.windows.net"

var (
	ErrNotFound    = errors.New("source not found")
	ErrUnsupported = errors.New("unsupported source")
)

// Opener resolves source URIs. Clients left nil are created on first use
// from the environment.
type Opener struct {
	S3              s3iface.S3API
	GCS             *storage.Client
	GCSOptions      []option.ClientOption
	AzureCredential azblob.Credential
}

// Open returns a reader for uri. Accepted forms are bare paths, file://,
// s3://bucket/key, gs://bucket/object and
// https://account.blob.core.windows.net/container/blob.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing source %q: %w", uri, err)
	}
	switch u.Scheme {
	case "", "file":
		return openFile(u.Path)
	case "s3":
		return o.openS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "gs":
		return o.openGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "https":
		if strings.HasSuffix(u.Host, azureBlobHostSuffix) {
			return o.openAzure(ctx, u)
		}
	}
	return nil, fmt.Errorf("%q: %w", uri, ErrUnsupported)
}

// Open is a shortcut for a zero Opener.
func Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return (&Opener{}).Open(ctx, uri)
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

func (o *Opener) openS3(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 source needs bucket and key: %w", ErrUnsupported)
	}
	if o.S3 == nil {
		sess, err := session.NewSession(&aws.Config{})
		if err != nil {
			return nil, fmt.Errorf("creating aws session: %w", err)
		}
		o.S3 = s3.New(sess)
	}
	rsp, err := o.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if err, ok := err.(awserr.Error); ok {
			if err.Code() == s3.ErrCodeNoSuchKey || err.Code() == s3.ErrCodeNoSuchBucket {
				return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
			}
		}
		return nil, fmt.Errorf(
			"getting object from bucket `%s` at key `%s`: %w",
			bucket,
			key,
			err,
		)
	}
	return rsp.Body, nil
}

// gcsReader closes the client it was opened with when that client is owned.
type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	if r.client != nil {
		if cerr := r.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (o *Opener) openGCS(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("gs source needs bucket and object: %w", ErrUnsupported)
	}
	client := o.GCS
	var owned *storage.Client
	if client == nil {
		opts := o.GCSOptions
		if len(opts) == 0 {
			opts = []option.ClientOption{option.WithoutAuthentication()}
		}
		var err error
		if client, err = storage.NewClient(ctx, opts...); err != nil {
			return nil, fmt.Errorf("creating gcs client: %w", err)
		}
		owned = client
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, object, ErrNotFound)
		}
		return nil, fmt.Errorf("reading gs://%s/%s: %w", bucket, object, err)
	}
	return &gcsReader{Reader: r, client: owned}, nil
}

func (o *Opener) openAzure(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	cred := o.AzureCredential
	if cred == nil {
		cred = azblob.NewAnonymousCredential()
	}
	blobURL := azblob.NewBlobURL(*u, azblob.NewPipeline(cred, azblob.PipelineOptions{}))
	rsp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		var serr azblob.StorageError
		if errors.As(err, &serr) && (serr.ServiceCode() == azblob.ServiceCodeBlobNotFound || serr.ServiceCode() == azblob.ServiceCodeContainerNotFound) {
			return nil, fmt.Errorf("%s: %w", u, ErrNotFound)
		}
		return nil, fmt.Errorf("downloading %s: %w", u, err)
	}
	return rsp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3}), nil
}
