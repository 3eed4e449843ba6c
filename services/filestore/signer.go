package filestoresvc

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/pkg/errors"
)

var (
	salt = []byte("somesha.services.filestore.signer")

	ErrInvalidToken = errors.New("invalid token")
)

// signer makes tokens granting read access to one object key.
// Tokens do not expire: stored URLs end up in school logos, trainer photos and course thumbnails,
// like the public URLs of the remote drivers. Deleting the object revokes its URL.
type signer struct {
	key [32]byte
}

func newSigner(secretKey string) *signer {
	return &signer{key: sha256.Sum256(append(append([]byte{}, salt...), secretKey...))}
}

func (s *signer) Token(objectKey string) string {
	h := hmac.New(sha256.New, s.key[:])
	_, _ = h.Write([]byte(objectKey))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (s *signer) Verify(objectKey, token string) error {
	if token == "" || subtle.ConstantTimeCompare([]byte(s.Token(objectKey)), []byte(token)) == 0 {
		return ErrInvalidToken
	}
	return nil
}
