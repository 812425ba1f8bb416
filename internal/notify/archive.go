package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// Archive stocke un reçu et renvoie un lien de téléchargement temporaire.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

type MinIOArchive struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
}

func NewMinIOArchive(client *minio.Client, bucket string, linkTTL time.Duration) *MinIOArchive {
	return &MinIOArchive{client: client, bucket: bucket, linkTTL: linkTTL}
}

func (a *MinIOArchive) Put(ctx context.Context, key string, body []byte) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "text/html; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("upload reçu %s: %w", key, err)
	}

	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("inline; filename=%q", key))
	signed, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.linkTTL, reqParams)
	if err != nil {
		return "", fmt.Errorf("url signée reçu %s: %w", key, err)
	}
	return signed.String(), nil
}

func receiptKey(businessOrderID string) string {
	return "receipts/" + businessOrderID + ".html"
}
