package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/johnquangdev/auction-scribe/pkg/config"
)

// ArchiveUploader pushes finalized session artifacts (the master transcript)
// to object storage so they survive archive-disk rotation on the capture host.
type ArchiveUploader struct {
	client *minio.Client
	bucket string
}

// NewArchiveUploader creates a MinIO-backed archive uploader
func NewArchiveUploader(cfg *config.StorageConfig) (*ArchiveUploader, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	uploader := &ArchiveUploader{
		client: minioClient,
		bucket: cfg.BucketName,
	}

	if err := uploader.ensureBucket(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}

	return uploader, nil
}

func (a *ArchiveUploader) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// UploadTranscript uploads a local transcript file under
// sessions/<sessionID>/<basename> and returns the object name.
func (a *ArchiveUploader) UploadTranscript(ctx context.Context, sessionID, localPath string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat transcript: %w", err)
	}

	objectName := fmt.Sprintf("sessions/%s/%s", sessionID, filepath.Base(localPath))
	_, err = a.client.FPutObject(ctx, a.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("upload transcript (%d bytes): %w", info.Size(), err)
	}

	return objectName, nil
}
