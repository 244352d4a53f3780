package importer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
)

// SnappySuffix marks sources stored in the snappy framing format.
const SnappySuffix = ".sz"

// ObjectGetter is the slice of the S3 client the importer needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SourceConfig configures how OpenSource reaches each kind of location.
type SourceConfig struct {
	// Stdin is read for the "-" location. Defaults to os.Stdin.
	Stdin io.Reader
	// S3 overrides the client built from Region and Endpoint.
	S3       ObjectGetter
	Region   string
	Endpoint string
}

// OpenSource opens a CSV source: a file path, "-" for stdin, or
// s3://bucket/key. Locations ending in .sz are snappy-decoded.
func OpenSource(ctx context.Context, location string, cfg SourceConfig) (io.ReadCloser, error) {
	location = strings.TrimSpace(location)
	var (
		rc  io.ReadCloser
		err error
	)
	switch {
	case location == "":
		return nil, fmt.Errorf("import source is required")
	case location == "-":
		in := cfg.Stdin
		if in == nil {
			in = os.Stdin
		}
		rc = io.NopCloser(in)
	case strings.HasPrefix(location, "s3://"):
		rc, err = openS3(ctx, location, cfg)
	default:
		rc, err = os.Open(location)
	}
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(location, SnappySuffix) {
		return &wrappedReader{Reader: snappy.NewReader(rc), closer: rc}, nil
	}
	return rc, nil
}

type wrappedReader struct {
	io.Reader
	closer io.Closer
}

func (w *wrappedReader) Close() error {
	return w.closer.Close()
}

func parseS3Location(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 location %q: %w", location, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 location %q: want s3://bucket/key", location)
	}
	return u.Host, key, nil
}

func openS3(ctx context.Context, location string, cfg SourceConfig) (io.ReadCloser, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return nil, err
	}

	client := cfg.S3
	if client == nil {
		client, err = newS3Client(ctx, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
	}
	return out.Body, nil
}

// newS3Client loads the default AWS credential chain. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func newS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}
