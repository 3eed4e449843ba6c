package filestoresvc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
)

// B2Storage keeps objects in a Backblaze B2 bucket.
type B2Storage struct {
	bucket  *b2.Bucket
	baseURL string
}

var _ core.FileStorage = (*B2Storage)(nil)

func NewB2Storage(ctx context.Context, conf core.StorageConfig) (*B2Storage, error) {
	client, err := b2.NewClient(ctx, conf.B2AccountID, conf.B2AppKey)
	if err != nil {
		return nil, errors.Wrap(err, "creating b2 client")
	}
	bucket, err := client.Bucket(ctx, conf.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "getting b2 bucket")
	}

	return &B2Storage{bucket: bucket, baseURL: b2BaseURL(conf.PublicBaseURL, bucket.BaseURL(), bucket.Name())}, nil
}

// b2BaseURL returns the configured public URL, or the bucket's friendly download URL.
func b2BaseURL(publicBaseURL, downloadURL, bucketName string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/")
	}
	return fmt.Sprintf("%s/file/%s", strings.TrimRight(downloadURL, "/"), bucketName)
}

func (s *B2Storage) Put(ctx context.Context, key string, body io.ReadSeeker, _ int64, contentType string) (core.StoredObject, error) {
	w := s.bucket.Object(key).NewWriter(ctx, b2.WithAttrsOption(&b2.Attrs{ContentType: contentType}))
	written, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return core.StoredObject{}, errors.Wrap(err, "writing b2 object")
	}
	if err = w.Close(); err != nil {
		return core.StoredObject{}, errors.Wrap(err, "closing b2 object")
	}
	return core.StoredObject{Key: key, URL: s.URL(key), ContentType: contentType, Size: written}, nil
}

func (s *B2Storage) Delete(ctx context.Context, key string) error {
	return errors.Wrap(s.bucket.Object(key).Delete(ctx), "deleting b2 object")
}

func (s *B2Storage) URL(key string) string {
	return s.baseURL + "/" + key
}
