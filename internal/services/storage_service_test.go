package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/healthfirst-backend/internal/config"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

type fakeS3 struct {
	s3iface.S3API
	puts    []*s3.PutObjectInput
	body    []byte
	err     error
	headErr error
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, input *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	for _, put := range f.puts {
		if aws.StringValue(put.Key) == aws.StringValue(input.Key) {
			return &s3.HeadObjectOutput{}, nil
		}
	}
	return nil, awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), http.StatusNotFound, "req-1")
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, input)
	f.body, _ = io.ReadAll(input.Body)
	return &s3.PutObjectOutput{}, nil
}

func archivedCertificate() *models.Certificate {
	cert := &models.Certificate{File: pdfPayload("reposo"), FileHash: utils.HashBytes([]byte("%PDF-1.4 reposo"))}
	cert.ID = uuid.MustParse("6f1f3c52-8d8b-4d4e-9a53-2f1b7c4a9e10")
	return cert
}

func TestArchiveCertificateUploadsDecodedFile(t *testing.T) {
	fake := &fakeS3{}
	storage := &StorageService{s3Client: fake, config: config.AWSConfig{S3Bucket: "hf-certs", CertificatesDir: "certificates"}}

	require.NoError(t, storage.ArchiveCertificate(context.Background(), archivedCertificate()))

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "hf-certs", aws.StringValue(fake.puts[0].Bucket))
	assert.Equal(t, "certificates/6f1f3c52-8d8b-4d4e-9a53-2f1b7c4a9e10", aws.StringValue(fake.puts[0].Key))
	assert.Equal(t, "application/pdf", aws.StringValue(fake.puts[0].ContentType))
	assert.Equal(t, []byte("%PDF-1.4 reposo"), fake.body)
}

func TestArchiveCertificateErrors(t *testing.T) {
	storage := &StorageService{s3Client: &fakeS3{err: errors.New("access denied")}, config: config.AWSConfig{S3Bucket: "hf-certs"}}
	assert.ErrorContains(t, storage.ArchiveCertificate(context.Background(), archivedCertificate()), "access denied")

	bad := archivedCertificate()
	bad.File = "%%%"
	assert.Error(t, storage.ArchiveCertificate(context.Background(), bad))

	tampered := archivedCertificate()
	tampered.FileHash = utils.HashBytes([]byte("other"))
	ok := &StorageService{s3Client: &fakeS3{}, config: config.AWSConfig{S3Bucket: "hf-certs"}}
	assert.ErrorContains(t, ok.ArchiveCertificate(context.Background(), tampered), "recorded hash")
}

func TestIsArchived(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{}
	storage := &StorageService{s3Client: fake, config: config.AWSConfig{S3Bucket: "hf-certs", CertificatesDir: "certificates"}}

	archived, err := storage.IsArchived(ctx, archivedCertificate())
	require.NoError(t, err)
	assert.False(t, archived)

	require.NoError(t, storage.ArchiveCertificate(ctx, archivedCertificate()))
	archived, err = storage.IsArchived(ctx, archivedCertificate())
	require.NoError(t, err)
	assert.True(t, archived)

	fake.headErr = errors.New("access denied")
	_, err = storage.IsArchived(ctx, archivedCertificate())
	assert.ErrorContains(t, err, "access denied")
}

func TestLocalStorageSkipsArchive(t *testing.T) {
	storage, err := NewStorageService(config.AWSConfig{})
	require.NoError(t, err)

	assert.False(t, storage.IsConfigured())
	assert.NoError(t, storage.ArchiveCertificate(context.Background(), archivedCertificate()))

	archived, err := storage.IsArchived(context.Background(), archivedCertificate())
	assert.NoError(t, err)
	assert.False(t, archived)

	_, err = storage.PresignCertificate(context.Background(), archivedCertificate(), time.Minute)
	assert.Error(t, err)
}

func TestPresignCertificate(t *testing.T) {
	sess := session.Must(session.NewSession(&aws.Config{
		Region:      aws.String("us-east-1"),
		Credentials: credentials.NewStaticCredentials("AKID", "SECRET", ""),
	}))
	storage := &StorageService{s3Client: s3.New(sess), config: config.AWSConfig{S3Bucket: "hf-certs", CertificatesDir: "certificates"}}

	url, err := storage.PresignCertificate(context.Background(), archivedCertificate(), 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "hf-certs")
	assert.Contains(t, url, "certificates/6f1f3c52-8d8b-4d4e-9a53-2f1b7c4a9e10")
	assert.Contains(t, url, "X-Amz-Expires=900")
}
