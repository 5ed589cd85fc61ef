package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// S3 rejects multipart parts smaller than 5 MiB (except the last).
const minPartSize int64 = 5 << 20

// Writer uploads archive objects as newline-delimited JSON.
type Writer struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.s3,
		uploader: manager.NewUploader(c.s3, func(u *manager.Uploader) {
			u.PartSize = minPartSize
		}),
		bucket: c.bucket,
	}
}

// Upload sends bodies below one part in a single PutObject and streams larger
// ones through the multipart uploader.
func (w *Writer) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(jsonlContentType),
	}
	if size >= 0 && size < minPartSize {
		in.ContentLength = aws.Int64(size)
		if _, err := w.client.PutObject(ctx, in); err != nil {
			return fmt.Errorf("s3blob: put %s (%d bytes): %w", key, size, err)
		}
		return nil
	}
	if _, err := w.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
	}
	return nil
}

var _ domain.ArchiveSink = (*Writer)(nil)
