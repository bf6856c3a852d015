package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"EventSync/internal/config"
	"EventSync/internal/interfaces"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// PutObjectAPI S3 客户端中归档用到的部分
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver 把每个原始批次存为 <prefix>/batches/YYYY/MM/DD/<run>.json
type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
	logger *logrus.Logger
}

// NewArchiver 按配置创建归档器；未配置 bucket 时返回 NopArchiver
func NewArchiver(ctx context.Context, cfg *config.S3Config, logger *logrus.Logger) (interfaces.BatchArchiver, error) {
	if cfg.Bucket == "" {
		logger.Info("未配置 s3.bucket，原始批次不归档")
		return NopArchiver{}, nil
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewS3Archiver(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3Client 创建 S3 兼容存储客户端（自定义 endpoint 时使用 path-style）
func NewS3Client(ctx context.Context, cfg *config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("加载 S3 配置失败: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewS3Archiver(client PutObjectAPI, bucket, prefix string, logger *logrus.Logger) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, now: time.Now, logger: logger}
}

// Archive 返回对象 key
func (a *S3Archiver) Archive(ctx context.Context, runID string, raw []byte) (string, error) {
	key := path.Join(a.prefix, "batches", a.now().UTC().Format("2006/01/02"), runID+".json")
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("上传批次失败: %w", err)
	}
	a.logger.WithFields(logrus.Fields{"bucket": a.bucket, "key": key, "bytes": len(raw)}).Info("原始批次已归档")
	return key, nil
}

// NopArchiver 不归档
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string, []byte) (string, error) { return "", nil }
