package service

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pinpincloud/internal/blob"
	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/events"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/metrics"
	"github.com/pinpincloud/internal/models"
)

// DefaultMaxUploadBytes is the largest accepted upload (100 MB)
const DefaultMaxUploadBytes int64 = 100 * 1024 * 1024

const maxFileNameLength = 255

// FileService owns upload, listing, download and deletion of files
type FileService struct {
	files     FileRepository
	plans     *PlanService
	blobs     blob.Store
	downloads *DownloadService
	orphans   OrphanRepository
	activity  ActivityRecorder
	publisher events.Publisher
	metrics   *metrics.Metrics
	maxUpload int64
	now       func() time.Time
}

// FileServiceConfig wires the collaborators of a FileService
type FileServiceConfig struct {
	Files          FileRepository
	Plans          *PlanService
	Blobs          blob.Store
	Downloads      *DownloadService
	Orphans        OrphanRepository
	Activity       ActivityRecorder
	Publisher      events.Publisher
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
}

// NewFileService creates a new file service
func NewFileService(cfg FileServiceConfig) *FileService {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &FileService{
		files:     cfg.Files,
		plans:     cfg.Plans,
		blobs:     cfg.Blobs,
		downloads: cfg.Downloads,
		orphans:   cfg.Orphans,
		activity:  cfg.Activity,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		maxUpload: maxUpload,
		now:       time.Now,
	}
}

// UploadInput represents one file to store
type UploadInput struct {
	OwnerID     string
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Upload validates, stores and registers a file. Uploads are not retried.
func (s *FileService) Upload(ctx context.Context, input *UploadInput) (*models.File, error) {
	name, err := cleanFileName(input.Name)
	if err != nil {
		return nil, err
	}
	if input.Size < 0 {
		return nil, errors.NewInvalidParameterError("size", "must not be negative")
	}
	if input.Size > s.maxUpload {
		return nil, errors.NewFileTooLargeError(input.Size, s.maxUpload)
	}
	if err := s.plans.CheckQuota(ctx, input.OwnerID, input.Size); err != nil {
		return nil, err
	}

	now := s.now()
	file := &models.File{
		ID:             uuid.New().String(),
		OwnerID:        input.OwnerID,
		Name:           name,
		SizeBytes:      input.Size,
		SizeLabel:      models.FormatSize(input.Size),
		UploadedAt:     now,
		StoragePointer: models.StoragePath(input.OwnerID, now, name),
		Shared:         false,
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId": input.OwnerID,
		"fileId": file.ID,
		"size":   input.Size,
	})

	if err := s.blobs.Upload(ctx, file.StoragePointer, input.Body, input.Size, input.ContentType); err != nil {
		logger.WithError(err).Error("Blob upload failed")
		return nil, errors.NewStorageError(err)
	}

	if err := s.files.Create(ctx, file); err != nil {
		s.discardBlob(ctx, file.StoragePointer, input.OwnerID)
		return nil, errors.NewDatabaseError("create file", err)
	}

	if err := s.plans.AdjustUsage(ctx, input.OwnerID, input.Size); err != nil {
		logger.WithError(err).Warn("Failed to record storage usage")
	}

	s.metrics.Upload(input.Size)
	recordActivity(ctx, s.activity, &models.Activity{
		Kind:       models.ActivityUpload,
		UserID:     input.OwnerID,
		FileID:     file.ID,
		Bytes:      input.Size,
		OccurredAt: now.UTC(),
	})
	publish(ctx, s.publisher, events.FilesTopic(input.OwnerID), events.TypeFileCreated, file)

	logger.Info("File uploaded")
	return file, nil
}

// List returns the files of ownerID, newest first
func (s *FileService) List(ctx context.Context, ownerID string) ([]*models.File, error) {
	files, err := s.files.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.NewDatabaseError("list files", err)
	}
	return files, nil
}

// Get returns file id if ownerID owns it. Files of other owners are reported as not found.
func (s *FileService) Get(ctx context.Context, ownerID, id string) (*models.File, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewNotFoundError("file", id)
		}
		return nil, errors.NewDatabaseError("get file", err)
	}
	if file.OwnerID != ownerID {
		return nil, errors.NewNotFoundError("file", id)
	}
	return file, nil
}

// Download returns the file record and contents of one of ownerID's files
func (s *FileService) Download(ctx context.Context, ownerID, id string) (*models.File, *DownloadResult, error) {
	file, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.downloads.Fetch(ctx, file, ownerID, s.activity)
	return file, result, err
}

// Delete removes the metadata, then the blob, then releases the quota
func (s *FileService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}

	file, err := s.files.Delete(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return errors.NewNotFoundError("file", id)
		}
		return errors.NewDatabaseError("delete file", err)
	}

	orphaned := s.discardBlob(ctx, file.StoragePointer, ownerID)
	if err := s.plans.AdjustUsage(ctx, ownerID, -file.SizeBytes); err != nil {
		logging.FromContext(ctx).WithField("fileId", id).WithError(err).Warn("Failed to release storage usage")
	}

	s.metrics.Delete(orphaned)
	recordActivity(ctx, s.activity, &models.Activity{
		Kind:       models.ActivityDelete,
		UserID:     ownerID,
		FileID:     id,
		Bytes:      file.SizeBytes,
		OccurredAt: s.now().UTC(),
	})
	publish(ctx, s.publisher, events.FilesTopic(ownerID), events.TypeFileDeleted, map[string]string{"id": id})
	return nil
}

// deleteAllForOwner removes every file of ownerID, metadata first
func (s *FileService) deleteAllForOwner(ctx context.Context, ownerID string) (int, error) {
	files, err := s.files.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return 0, errors.NewDatabaseError("delete files", err)
	}
	for _, file := range files {
		orphaned := s.discardBlob(ctx, file.StoragePointer, ownerID)
		s.metrics.Delete(orphaned)
	}
	return len(files), nil
}

// discardBlob deletes a blob, recording it as an orphan when that fails.
// It reports whether the blob was orphaned.
func (s *FileService) discardBlob(ctx context.Context, pointer, ownerID string) bool {
	err := s.blobs.Delete(ctx, pointer)
	if err == nil || blob.Classify(err) == blob.KindNotFound {
		return false
	}

	logger := logging.FromContext(ctx).WithField("pointer", pointer)
	logger.WithError(err).Warn("Blob delete failed, recording orphan")

	if s.orphans != nil {
		orphan := &models.OrphanBlob{
			StoragePointer: pointer,
			OwnerID:        ownerID,
			LastError:      err.Error(),
			CreatedAt:      s.now(),
		}
		if oerr := s.orphans.Add(ctx, orphan); oerr != nil {
			logger.WithError(oerr).Error("Failed to record orphan blob")
		}
	}
	return true
}

// cleanFileName strips directories and rejects names that cannot be stored
func cleanFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", errors.NewInvalidParameterError("name", "file name is required")
	}
	if len(name) > maxFileNameLength {
		return "", errors.NewInvalidParameterError("name", "file name is too long")
	}
	return name, nil
}
