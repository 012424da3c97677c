package channelsinfra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// S3MessageArchive guarda el payload crudo de cada webhook en S3 bajo
// {brand_id}/{webhook_id}.json. La base solo conserva el registro de
// auditoría; el payload completo vive acá.
type S3MessageArchive struct {
	client *s3.Client
	bucket string
}

func NewS3MessageArchive(region, bucket, accessKeyID, secretAccessKey string) *S3MessageArchive {
	cfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	}
	return &S3MessageArchive{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}
}

func (a *S3MessageArchive) Archive(ctx context.Context, brandID int64, webhookID kernel.WebhookID, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errx.Wrap(err, "failed to marshal webhook payload", errx.TypeInternal).
			WithDetail("webhook_id", webhookID.String())
	}

	key := fmt.Sprintf("%d/%s.json", brandID, webhookID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return channels.ErrArchiveFailed().
			WithDetail("bucket", a.bucket).
			WithDetail("key", key).
			WithCause(err)
	}
	return nil
}

// NoopMessageArchive se usa cuando el storage no está configurado
type NoopMessageArchive struct{}

func NewNoopMessageArchive() *NoopMessageArchive {
	return &NoopMessageArchive{}
}

func (NoopMessageArchive) Archive(ctx context.Context, brandID int64, webhookID kernel.WebhookID, payload map[string]any) error {
	return nil
}
