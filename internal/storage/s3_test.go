package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	data, _ := io.ReadAll(params.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, f.err
}

// TestObjectKey 测试对象 key 生成
func TestObjectKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	assert.Equal(t, "1700000000123-street.jpg", ObjectKey(at, "street.jpg"))
	assert.Equal(t, "1700000000123-cat.png", ObjectKey(at, "../../etc/cat.png"))
	assert.Equal(t, "1700000000123-dog.png", ObjectKey(at, `C:\photos\dog.png`))
	assert.Equal(t, "1700000000123-upload", ObjectKey(at, ""))
}

// TestS3Uploader_Upload 测试上传
func TestS3Uploader_Upload(t *testing.T) {
	client := &fakeS3{}
	uploader, err := NewS3Uploader(client, S3Config{Bucket: "media", Region: "eu-west-1"})
	require.NoError(t, err)
	uploader.now = func() time.Time { return time.UnixMilli(1700000000000) }

	obj, err := uploader.Upload(context.Background(), "my photo.jpg", "image/jpeg", 5, strings.NewReader("bytes"))
	require.NoError(t, err)

	assert.Equal(t, "1700000000000-my photo.jpg", obj.Key)
	assert.Equal(t, "https://media.s3.eu-west-1.amazonaws.com/1700000000000-my%20photo.jpg", obj.URL)
	assert.Equal(t, "media", aws.ToString(client.input.Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(client.input.ContentType))
	assert.Equal(t, int64(5), aws.ToInt64(client.input.ContentLength))
	assert.Equal(t, "bytes", client.body)
}

// TestS3Uploader_Errors 测试配置和上传错误
func TestS3Uploader_Errors(t *testing.T) {
	_, err := NewS3Uploader(&fakeS3{}, S3Config{})
	assert.Error(t, err)

	uploader, err := NewS3Uploader(&fakeS3{err: errors.New("AccessDenied")}, S3Config{Bucket: "media", PublicBaseURL: "http://localhost:9000/media/"})
	require.NoError(t, err)
	_, err = uploader.Upload(context.Background(), "a.jpg", "image/jpeg", 0, strings.NewReader(""))
	assert.Error(t, err)

	assert.Equal(t, "http://localhost:9000/media/k.jpg", uploader.objectURL("k.jpg"))
}
