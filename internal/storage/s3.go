package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object 已上传的对象
type Object struct {
	Key string
	URL string
}

// Uploader 对象存储接口
type Uploader interface {
	Upload(ctx context.Context, name string, contentType string, size int64, body io.Reader) (*Object, error)
}

// PutObjectAPI S3 PutObject 客户端接口
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config S3 配置
type S3Config struct {
	Bucket string
	Region string
	// PublicBaseURL 自定义访问地址,为空时使用 AWS 虚拟主机风格地址
	PublicBaseURL string
}

// S3Uploader 上传媒体文件到 S3
type S3Uploader struct {
	client PutObjectAPI
	cfg    S3Config
	now    func() time.Time
}

// NewS3Uploader 创建 S3 上传器
func NewS3Uploader(client PutObjectAPI, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &S3Uploader{client: client, cfg: cfg, now: time.Now}, nil
}

// Upload 上传文件,key 格式为 <毫秒时间戳>-<文件名>
func (u *S3Uploader) Upload(ctx context.Context, name string, contentType string, size int64, body io.Reader) (*Object, error) {
	key := ObjectKey(u.now(), name)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return &Object{Key: key, URL: u.objectURL(key)}, nil
}

func (u *S3Uploader) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if u.cfg.PublicBaseURL != "" {
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, escaped)
}

// ObjectKey 生成对象 key,文件名只保留最后一段
func ObjectKey(at time.Time, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return fmt.Sprintf("%d-%s", at.UnixMilli(), base)
}
