package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/garimto81/archive-analyzer/internal/tracker"
)

// S3TreeSource reads the tracked tree from an S3 bucket (or an
// S3-compatible store such as MinIO), for archives that live in object
// storage rather than on a mounted share. Object keys stand in for share
// paths.
type S3TreeSource struct {
	client     *s3.Client
	bucket     string
	prefix     string
	extensions map[string]bool
}

// S3Options configures an S3TreeSource.
type S3Options struct {
	Bucket     string
	Prefix     string
	Region     string
	Endpoint   string // for S3-compatible stores; empty uses AWS
	AccessKey  string // static credentials; empty uses the default chain
	SecretKey  string
	Extensions []string
}

// NewS3TreeSource creates a tree source over the given bucket and prefix.
func NewS3TreeSource(ctx context.Context, opts S3Options) (*S3TreeSource, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 source requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = true
	}

	return &S3TreeSource{
		client:     client,
		bucket:     opts.Bucket,
		prefix:     opts.Prefix,
		extensions: set,
	}, nil
}

// List pages through the bucket and returns every tracked object.
func (s *S3TreeSource) List(ctx context.Context) ([]tracker.TreeEntry, error) {
	var entries []tracker.TreeEntry

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") || !s.extensions[tracker.Ext(key)] {
				continue
			}
			entries = append(entries, tracker.TreeEntry{
				Path:  tracker.NormalizePath(key),
				Size:  aws.ToInt64(obj.Size),
				MTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	return entries, nil
}

// ReadPrefix fetches up to n leading bytes of the object with a ranged GET.
func (s *S3TreeSource) ReadPrefix(ctx context.Context, path string, n int64) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", n-1)),
	})
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", s.bucket, path, err)
	}
	defer out.Body.Close()

	buf, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s body: %w", s.bucket, path, err)
	}
	return buf, nil
}

// Stat returns the current entry for one object, or nil if it is gone.
func (s *S3TreeSource) Stat(ctx context.Context, path string) (*tracker.TreeEntry, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("head s3://%s/%s: %w", s.bucket, path, err)
	}

	return &tracker.TreeEntry{
		Path:  tracker.NormalizePath(path),
		Size:  aws.ToInt64(out.ContentLength),
		MTime: aws.ToTime(out.LastModified),
	}, nil
}

// Compile-time check that S3TreeSource implements the tracker.TreeSource interface
var _ tracker.TreeSource = (*S3TreeSource)(nil)
