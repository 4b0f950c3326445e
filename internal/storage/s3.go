package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

func isS3(path string) bool {
	return strings.HasPrefix(path, s3Scheme)
}

// parseS3URL splits s3://bucket/key. Both parts must be non-empty.
func parseS3URL(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", path)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must be s3://bucket/key: %q", path)
	}
	return bucket, key, nil
}

// s3Client builds the client on first use so local runs never touch AWS
// configuration. Credentials come from the environment.
func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	if o.client != nil {
		return o.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if o.s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(o.s3cfg.Region))
	}
	if o.s3cfg.Endpoint != "" {
		endpoint := o.s3cfg.Endpoint
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               endpoint,
					SigningRegion:     region,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{Err: fmt.Errorf("no custom endpoint for %s", service)}
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	o.client = s3.NewFromConfig(cfg, func(opt *s3.Options) {
		opt.UsePathStyle = o.s3cfg.Endpoint != ""
	})
	return o.client, nil
}

func (o *Opener) openS3(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(path)
	if err != nil {
		return nil, err
	}
	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", path, err)
	}
	o.logger.Debug("reading s3 object", "bucket", bucket, "key", key)
	return out.Body, nil
}

// createS3 spools output to a temporary file and uploads it on Close.
func (o *Opener) createS3(ctx context.Context, path string) (io.WriteCloser, error) {
	bucket, key, err := parseS3URL(path)
	if err != nil {
		return nil, err
	}
	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "dpoconv-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	return &s3Upload{
		ctx:      ctx,
		file:     tmp,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		key:      key,
		opener:   o,
	}, nil
}

type s3Upload struct {
	ctx      context.Context
	file     *os.File
	uploader *manager.Uploader
	bucket   string
	key      string
	opener   *Opener
}

func (u *s3Upload) Write(p []byte) (int, error) {
	return u.file.Write(p)
}

func (u *s3Upload) Close() error {
	defer os.Remove(u.file.Name())
	defer u.file.Close()

	if _, err := u.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool file: %w", err)
	}
	_, err := u.uploader.Upload(u.ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.key),
		Body:   u.file,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", u.bucket, u.key, err)
	}
	u.opener.logger.Info("output uploaded", "bucket", u.bucket, "key", u.key)
	return nil
}
