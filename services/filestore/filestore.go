// Package filestoresvc implements core.FileStorage on local disk, S3 and Backblaze B2.
package filestoresvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
)

// New returns the storage of the configured driver.
func New(ctx context.Context, conf *core.Config) (core.FileStorage, error) {
	sc := conf.Storage
	switch sc.Driver {
	case "", "local":
		return NewLocalStorage(sc.LocalDir, sc.PublicBaseURL, conf.SecretKey)
	case "s3":
		return NewS3Storage(sc)
	case "b2":
		return NewB2Storage(ctx, sc)
	}
	return nil, errors.Errorf("unknown storage driver %q", sc.Driver)
}
