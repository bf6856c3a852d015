package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"EventSync/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverKeyLayout(t *testing.T) {
	fake := &fakePutter{}
	a := NewS3Archiver(fake, "events", "prod", logrus.New())
	a.now = func() time.Time { return time.Date(2030, 4, 9, 23, 0, 0, 0, time.UTC) }

	key, err := a.Archive(context.Background(), "run-1", []byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "prod/batches/2030/04/09/run-1.json", key)
	assert.Equal(t, "events", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "[]", string(fake.body))
}

func TestS3ArchiverError(t *testing.T) {
	a := NewS3Archiver(&fakePutter{err: errors.New("denied")}, "events", "", logrus.New())
	_, err := a.Archive(context.Background(), "run-1", nil)
	assert.Error(t, err)
}

func TestNewArchiverWithoutBucket(t *testing.T) {
	a, err := NewArchiver(context.Background(), &config.S3Config{}, logrus.New())
	require.NoError(t, err)
	assert.IsType(t, NopArchiver{}, a)
}
