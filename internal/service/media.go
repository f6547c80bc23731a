package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"ecoaction/internal/apperror"
	"ecoaction/internal/config"
	"ecoaction/internal/model"
	"ecoaction/internal/repository"
)

const jpegQuality = 85

// ObjectStore is the subset of the S3 API used for avatars.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// MediaService stores avatars in Cloudflare R2 and records their public URL
// as the user's icon.
type MediaService struct {
	store     ObjectStore // nil when R2 is not configured
	bucket    string
	publicURL string
	users     repository.UserRepository
	logger    *slog.Logger
}

// NewR2Client builds an S3-compatible client for Cloudflare R2. It returns
// nil without error when R2 is not configured.
func NewR2Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	if cfg.R2AccountID == "" || cfg.R2AccessKeyID == "" || cfg.R2SecretAccessKey == "" || cfg.R2BucketName == "" || cfg.R2PublicURL == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

func NewMediaService(store ObjectStore, cfg *config.Config, users repository.UserRepository, logger *slog.Logger) *MediaService {
	return &MediaService{
		store:     store,
		bucket:    cfg.R2BucketName,
		publicURL: strings.TrimSuffix(cfg.R2PublicURL, "/"),
		users:     users,
		logger:    logger.With(slog.String("component", "media_service")),
	}
}

// Enabled reports whether avatar storage is configured.
func (s *MediaService) Enabled() bool {
	return s.store != nil
}

// UploadAvatar enforces size/type, normalizes to a 200x200 JPEG, uploads it
// and points the user's icon at the new object.
func (s *MediaService) UploadAvatar(ctx context.Context, userID int64, file multipart.File, header *multipart.FileHeader) (*model.UploadResult, error) {
	if !s.Enabled() {
		return nil, apperror.Unavailable("avatar storage is not configured")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, _, err := readAndValidateImage(file, header, model.MaxAvatarSizeBytes)
	if err != nil {
		return nil, err
	}

	jpegBytes, err := resizeToJPEG(data, model.AvatarWidth, model.AvatarHeight)
	if err != nil {
		return nil, apperror.ValidationFailed("avatar", "image could not be decoded")
	}

	key := fmt.Sprintf("%s/%d/%s%s", model.AvatarFolder, userID, uuid.NewString(), model.AvatarExt)
	if err := s.putObject(ctx, key, jpegBytes, model.ContentTypeJPEG, model.AvatarCacheControl); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s", s.publicURL, key)
	if err := s.users.UpdateProfile(ctx, userID, user.Username, url); err != nil {
		// The icon still points at the previous avatar; drop the orphan.
		if delErr := s.deleteObject(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned avatar", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	if oldKey, ok := s.keyFromURL(user.Icon); ok {
		if err := s.deleteObject(ctx, oldKey); err != nil {
			s.logger.Warn("failed to remove previous avatar", slog.String("key", oldKey), slog.Any("error", err))
		}
	}

	s.logger.Info("avatar uploaded", slog.Int64("user_id", userID), slog.String("key", key))
	return &model.UploadResult{URL: url, Key: key}, nil
}

// keyFromURL returns the object key when url points into our bucket.
func (s *MediaService) keyFromURL(url string) (string, bool) {
	prefix := s.publicURL + "/" + model.AvatarFolder + "/"
	if s.publicURL == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, s.publicURL+"/"), true
}

// readAndValidateImage loads the upload into memory with size and type checks.
func readAndValidateImage(file multipart.File, header *multipart.FileHeader, maxSize int64) ([]byte, string, error) {
	if header.Size > maxSize {
		return nil, "", model.ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, "", model.ErrFileTooLarge
	}

	contentType := header.Header.Get("Content-Type")
	if (contentType == "" || contentType == "application/octet-stream") && len(data) > 0 {
		contentType = http.DetectContentType(data[:min(len(data), 512)])
	}
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if !model.IsAllowedImageType(contentType) {
		return nil, "", model.ErrInvalidImageType
	}

	return data, contentType, nil
}

// resizeToJPEG centers/crops to target size and encodes as JPEG.
func resizeToJPEG(data []byte, width, height int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	resized := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *MediaService) putObject(ctx context.Context, key string, body []byte, contentType, cacheControl string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to r2: %w", err)
	}
	return nil
}

func (s *MediaService) deleteObject(ctx context.Context, key string) error {
	_, err := s.store.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from r2: %w", err)
	}
	return nil
}
