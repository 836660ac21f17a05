// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/healthfirst-backend/internal/config"
	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

// StorageService archives certificate documents to S3. Without credentials
// it runs in local mode and archiving is skipped.
type StorageService struct {
	s3Client s3iface.S3API
	config   config.AWSConfig
}

var (
	_ CertificateArchiver  = (*StorageService)(nil)
	_ CertificatePresigner = (*StorageService)(nil)
)

func NewStorageService(cfg config.AWSConfig) (*StorageService, error) {
	if cfg.AccessKeyID == "" || cfg.S3Bucket == "" {
		// Return service without S3 for local development
		return &StorageService{config: cfg}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   cfg,
	}, nil
}

func (s *StorageService) IsConfigured() bool {
	return s.s3Client != nil
}

// ArchiveCertificate uploads the decoded certificate under its id.
func (s *StorageService) ArchiveCertificate(ctx context.Context, certificate *models.Certificate) error {
	if s.s3Client == nil {
		logger.FromContext(ctx).WithField("certificate_id", certificate.ID).Debug("S3 not configured, archive skipped")
		return nil
	}

	data, err := DecodeDocument(certificate.File)
	if err != nil {
		return fmt.Errorf("failed to decode certificate %s: %w", certificate.ID, err)
	}
	if certificate.FileHash != "" && !utils.ValidateFileHash(data, certificate.FileHash) {
		return fmt.Errorf("certificate %s does not match its recorded hash", certificate.ID)
	}

	key := s.objectKey(certificate)
	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mimetype.Detect(data).String()),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"certificate_id": certificate.ID,
		"key":            key,
		"size":           len(data),
	}).Info("Certificate archived")
	return nil
}

// IsArchived reports whether the certificate's object exists in the bucket.
func (s *StorageService) IsArchived(ctx context.Context, certificate *models.Certificate) (bool, error) {
	if s.s3Client == nil {
		return false, nil
	}

	_, err := s.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(s.objectKey(certificate)),
	})
	if err != nil {
		var reqErr awserr.RequestFailure
		if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up archived certificate: %w", err)
	}
	return true, nil
}

func (s *StorageService) PresignCertificate(ctx context.Context, certificate *models.Certificate, expiry time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(s.objectKey(certificate)),
	})
	req.SetContext(ctx)

	url, err := req.Presign(expiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}

func (s *StorageService) objectKey(certificate *models.Certificate) string {
	return path.Join(s.config.CertificatesDir, certificate.ID.String())
}
