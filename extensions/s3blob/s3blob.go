// Package s3blob is a blob-tier persistence Extension for large file
// content: it stores and fetches file bytes in S3 keyed by file id
// (Put/Get/Delete), and ShouldOffload reports whether a body exceeds
// Config.InlineThreshold. It does not itself move content out of a
// content.Store document, and it records no pointer in any content document.
//
// Grounded on launix-de-memcp's storage/persistence-s3.go S3Storage:
// config.LoadDefaultConfig + static credentials + a custom endpoint/
// path-style option for MinIO-compatible stores, and lazy client
// construction (ensureOpen there, newClient here).
package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Leftium/epicenter/pkg/workspace"
)

// Config mirrors the teacher's S3Factory: a literal options struct, no
// config-file library.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool

	// InlineThreshold is the byte size above which ShouldOffload reports
	// true (0 disables offloading). Put uploads whatever it is given.
	InlineThreshold int
}

// Provider is a workspace.Extension exposing Put/Get/Delete for blob
// content keyed by file id.
type Provider struct {
	workspace.NoOpExtension

	cfg Config

	mu     sync.Mutex
	client *s3.Client
}

// New returns a factory suitable for workspace.Client.WithExtension.
func New(cfg Config) workspace.Factory {
	return func(c *workspace.Client) (workspace.Extension, error) {
		return &Provider{cfg: cfg}, nil
	}
}

func (p *Provider) ensureClient(ctx context.Context) (*s3.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if p.cfg.Region != "" {
		opts = append(opts, config.WithRegion(p.cfg.Region))
	}
	if p.cfg.AccessKeyID != "" && p.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.cfg.AccessKeyID, p.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if p.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(p.cfg.Endpoint) })
	}
	if p.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	p.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return p.client, nil
}

func (p *Provider) key(fileID string) string {
	if p.cfg.Prefix == "" {
		return fileID
	}
	return p.cfg.Prefix + "/" + fileID
}

// ShouldOffload reports whether data is large enough to push to S3 rather
// than keep inline in a content.Store Text body.
func (p *Provider) ShouldOffload(data []byte) bool {
	return p.cfg.InlineThreshold > 0 && len(data) > p.cfg.InlineThreshold
}

// Put uploads fileId's bytes.
func (p *Provider) Put(ctx context.Context, fileID string, data []byte) error {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(p.key(fileID)),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Get downloads fileId's bytes.
func (p *Provider) Get(ctx context.Context, fileID string) ([]byte, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(p.key(fileID)),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Delete removes fileId's blob, if any.
func (p *Provider) Delete(ctx context.Context, fileID string) error {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(p.key(fileID)),
	})
	return err
}
