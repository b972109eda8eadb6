package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"salon-chat/internal/domain/message"
	"salon-chat/internal/storage"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
)

// Presigner issues upload grants for object keys.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (storage.PresignedPut, error)
}

// UploadS3Service hands out presigned PUT URLs for chat attachments. The
// client uploads directly to the bucket, then sends a message carrying the
// returned attachment.
type UploadS3Service struct {
	chats   *ChatService
	storage Presigner
}

type PresignInput struct {
	ChatID      uuid.UUID
	UploaderID  uuid.UUID
	FileName    string
	ContentType string
	FileSize    int64
}

type PresignResult struct {
	UploadURL  string
	Method     string
	Key        string
	ExpiresAt  time.Time
	Attachment message.Attachment
}

func NewUploadS3Service(chats *ChatService, storage Presigner) *UploadS3Service {
	return &UploadS3Service{chats: chats, storage: storage}
}

func (s *UploadS3Service) Enabled() bool {
	return s != nil && s.storage != nil
}

func (s *UploadS3Service) CreatePresignedUpload(ctx context.Context, in PresignInput) (PresignResult, error) {
	if !s.Enabled() {
		return PresignResult{}, salon_errors.Validation("attachments are not configured")
	}
	name := strings.TrimSpace(in.FileName)
	if name == "" {
		return PresignResult{}, salon_errors.Validation("file name is required")
	}
	if in.FileSize <= 0 || in.FileSize > storage.MaxObjectSize {
		return PresignResult{}, salon_errors.Validation("file size must be between 1 and %d bytes", storage.MaxObjectSize)
	}
	contentType, err := storage.ValidateContentType(in.ContentType)
	if err != nil {
		return PresignResult{}, salon_errors.Validation("%s", err.Error())
	}
	if err := s.chats.RequireMember(ctx, in.ChatID, in.UploaderID); err != nil {
		return PresignResult{}, err
	}

	key := buildObjectKey(in.UploaderID, uuid.New(), name)
	grant, err := s.storage.PresignPut(ctx, key, contentType, in.FileSize)
	if err != nil {
		return PresignResult{}, fmt.Errorf("presign attachment: %w", err)
	}

	return PresignResult{
		UploadURL: grant.URL,
		Method:    grant.Method,
		Key:       grant.Key,
		ExpiresAt: grant.ExpiresAt,
		Attachment: message.Attachment{
			URL:  grant.FileURL,
			Name: name,
			Size: in.FileSize,
			Mime: contentType,
		},
	}, nil
}

func buildObjectKey(uploaderID, objectID uuid.UUID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	base := fmt.Sprintf("uploads/%s/%s", uploaderID, objectID)
	if ext == "" {
		return base
	}
	return base + ext
}
