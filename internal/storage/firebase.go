package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// FirebaseBucket stores objects in the project's Firebase Storage bucket and
// returns token-protected download URLs.
type FirebaseBucket struct {
	name   string
	handle *gcs.BucketHandle
}

func NewFirebaseBucket(ctx context.Context, credentialsPath, bucket string) (*FirebaseBucket, error) {
	opt := option.WithCredentialsFile(credentialsPath)

	app, err := firebase.NewApp(ctx, &firebase.Config{StorageBucket: bucket}, opt)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase storage: %w", err)
	}

	handle, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("firebase bucket: %w", err)
	}

	return &FirebaseBucket{name: bucket, handle: handle}, nil
}

func (b *FirebaseBucket) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	token := uuid.NewString()

	w := b.handle.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	return DownloadURL(b.name, name, token), nil
}

func DownloadURL(bucket, name, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(name), token)
}
