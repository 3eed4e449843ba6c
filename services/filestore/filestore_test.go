package filestoresvc

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core"
)

func TestSigner(t *testing.T) {
	s := newSigner("secret")
	token := s.Token("school/image/a.png")

	tests := []struct {
		name    string
		key     string
		token   string
		wantErr error
	}{
		{name: "no token", key: "school/image/a.png", wantErr: ErrInvalidToken},
		{name: "garbage", key: "school/image/a.png", token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "other key", key: "school/image/b.png", token: token, wantErr: ErrInvalidToken},
		{name: "other secret", key: "school/image/a.png", token: newSigner("other").Token("school/image/a.png"), wantErr: ErrInvalidToken},
		{name: "valid token", key: "school/image/a.png", token: token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, s.Verify(tt.key, tt.token))
		})
	}
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://localhost:8000/uploads/", "secret")
	require.NoError(t, err)

	obj, err := store.Put(ctx, "school/attachment/notes.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)
	require.True(t, strings.HasPrefix(obj.URL, "http://localhost:8000/uploads/school/attachment/notes.txt?token="))

	u, err := url.Parse(obj.URL)
	require.NoError(t, err)
	f, err := store.Open("school/attachment/notes.txt", u.Query().Get("token"))
	require.NoError(t, err)
	content, _ := io.ReadAll(f)
	_ = f.Close()
	assert.Equal(t, "hello", string(content))

	_, err = store.Open("school/attachment/notes.txt", "nope")
	assert.Equal(t, ErrInvalidToken, err)

	// stored URLs keep working: across restarts and however long they sit in a record
	restarted, err := NewLocalStorage(dir, "http://localhost:8000/uploads", "secret")
	require.NoError(t, err)
	assert.Equal(t, obj.URL, restarted.URL("school/attachment/notes.txt"))
	f, err = restarted.Open("school/attachment/notes.txt", u.Query().Get("token"))
	require.NoError(t, err)
	_ = f.Close()

	_, err = store.Put(ctx, "../escape.txt", strings.NewReader("x"), 1, "text/plain")
	assert.Equal(t, ErrInvalidKey, err)

	require.NoError(t, store.Delete(ctx, "school/attachment/notes.txt"))
	require.NoError(t, store.Delete(ctx, "school/attachment/notes.txt"))
	_, err = store.Open("school/attachment/notes.txt", u.Query().Get("token"))
	assert.True(t, core.IsNotFound(err))
}

type s3Mock struct {
	s3iface.S3API
	put     *s3.PutObjectInput
	deleted string
}

func (m *s3Mock) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	m.put = in
	return &s3.PutObjectOutput{}, nil
}

func (m *s3Mock) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	m.deleted = aws.StringValue(in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Storage(t *testing.T) {
	mock := &s3Mock{}
	store := newS3Storage(mock, "somesha", "https://cdn.somesha.test/")

	obj, err := store.Put(context.Background(), "platform/thumbnail/x.png", bytes.NewReader([]byte("png")), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.somesha.test/platform/thumbnail/x.png", obj.URL)
	assert.Equal(t, "somesha", aws.StringValue(mock.put.Bucket))
	assert.Equal(t, "image/png", aws.StringValue(mock.put.ContentType))
	assert.Equal(t, int64(3), aws.Int64Value(mock.put.ContentLength))

	require.NoError(t, store.Delete(context.Background(), "platform/thumbnail/x.png"))
	assert.Equal(t, "platform/thumbnail/x.png", mock.deleted)
}

func TestB2BaseURL(t *testing.T) {
	assert.Equal(t, "https://cdn.somesha.test", b2BaseURL("https://cdn.somesha.test/", "https://f002.backblazeb2.com", "somesha"))
	assert.Equal(t, "https://f002.backblazeb2.com/file/somesha", b2BaseURL("", "https://f002.backblazeb2.com/", "somesha"))

	store := &B2Storage{baseURL: b2BaseURL("", "https://f002.backblazeb2.com", "somesha")}
	assert.Equal(t, "https://f002.backblazeb2.com/file/somesha/platform/image/x.png", store.URL("platform/image/x.png"))
}
