package filestoresvc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
)

// S3Storage keeps objects in an S3 (or S3 compatible) bucket.
type S3Storage struct {
	client  s3iface.S3API
	bucket  string
	baseURL string
}

var _ core.FileStorage = (*S3Storage)(nil)

func NewS3Storage(conf core.StorageConfig) (*S3Storage, error) {
	awsConf := &aws.Config{Region: aws.String(conf.Region)}
	if conf.AccessKey != "" {
		awsConf.Credentials = credentials.NewStaticCredentials(conf.AccessKey, conf.SecretKey, "")
	}
	if conf.Endpoint != "" {
		awsConf.Endpoint = aws.String(conf.Endpoint)
		awsConf.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConf)
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}

	baseURL := conf.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", conf.Bucket, conf.Region)
	}
	return newS3Storage(s3.New(sess), conf.Bucket, baseURL), nil
}

func newS3Storage(client s3iface.S3API, bucket, baseURL string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *S3Storage) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) (core.StoredObject, error) {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return core.StoredObject{}, errors.Wrap(err, "uploading to S3")
	}
	return core.StoredObject{Key: key, URL: s.URL(key), ContentType: contentType, Size: size}, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrap(err, "deleting from S3")
}

func (s *S3Storage) URL(key string) string {
	return s.baseURL + "/" + key
}
