package cloudflare

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	appconfig "walletwise_backend/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
)

// WebhookArchive stores verified webhook bodies for audit.
type WebhookArchive interface {
	Store(ctx context.Context, gateway, gatewayRef string, body []byte, receivedAt time.Time) (string, error)
}

// R2Archive writes webhook bodies to a Cloudflare R2 bucket.
type R2Archive struct {
	client *s3.Client
	bucket string
}

func getS3Client(ctx context.Context, cfg appconfig.ArchiveConfig, optFns ...func(*s3.Options)) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	opts := append([]func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
		o.Region = "auto"
	}}, optFns...)

	return s3.NewFromConfig(awsCfg, opts...), nil
}

// NewR2Archive returns nil when the archive is not configured.
func NewR2Archive(ctx context.Context, cfg appconfig.ArchiveConfig, optFns ...func(*s3.Options)) (*R2Archive, error) {
	if cfg.BucketName == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, nil
	}
	client, err := getS3Client(ctx, cfg, optFns...)
	if err != nil {
		return nil, err
	}
	return &R2Archive{client: client, bucket: cfg.BucketName}, nil
}

// ObjectKey lays webhook bodies out by gateway and day.
func ObjectKey(gateway, gatewayRef string, receivedAt time.Time) string {
	ref := slug.Make(gatewayRef)
	if ref == "" {
		ref = "unknown"
	}
	return path.Join(
		"webhooks",
		slug.Make(gateway),
		receivedAt.UTC().Format("2006/01/02"),
		fmt.Sprintf("%s-%d.json", ref, receivedAt.Unix()),
	)
}

func (a *R2Archive) Store(ctx context.Context, gateway, gatewayRef string, body []byte, receivedAt time.Time) (string, error) {
	objectKey := ObjectKey(gateway, gatewayRef, receivedAt)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("could not upload webhook to R2: %w", err)
	}
	return objectKey, nil
}
