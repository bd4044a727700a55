package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config configures the s3 backend. Credentials come from the AWS
// default chain.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every frame key.
	Prefix string
	// Region overrides the region from the environment or shared config.
	Region string
	// Endpoint points the client at an S3-compatible service such as MinIO.
	Endpoint     string
	UsePathStyle bool
}

// Validate reports a missing bucket.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" into its parts. An s3:// scheme and
// surrounding slashes are ignored.
func ParseS3Path(path string) (bucket, prefix string) {
	path = strings.Trim(strings.TrimPrefix(path, "s3://"), "/")
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

func (c *S3Config) loadOptions() []func(*config.LoadOptions) error {
	if c.Region == "" {
		return nil
	}
	return []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
}

func (c *S3Config) clientOptions(o *s3.Options) {
	if c.Endpoint != "" {
		o.BaseEndpoint = &c.Endpoint
	}
	o.UsePathStyle = o.UsePathStyle || c.UsePathStyle
}

func newS3Factory(cfg S3Config) (lode.StoreFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	aws, err := config.LoadDefaultConfig(context.Background(), cfg.loadOptions()...)
	if err != nil {
		return nil, Wrap(fmt.Errorf("load AWS config: %w", err), "open", "s3://"+cfg.Bucket)
	}
	client := s3.NewFromConfig(aws, cfg.clientOptions)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	}, nil
}
