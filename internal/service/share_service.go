package service

import (
	"context"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/events"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/metrics"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

// MinSharePasswordLength is the shortest accepted share password
const MinSharePasswordLength = 6

// ShareService creates, removes and resolves share links
type ShareService struct {
	files     FileRepository
	downloads *DownloadService
	activity  ActivityRecorder
	publisher events.Publisher
	metrics   *metrics.Metrics
	origin    string
	hashCost  int
	now       func() time.Time
}

// NewShareService creates a share service. origin is the public base URL of the client.
func NewShareService(
	files FileRepository,
	downloads *DownloadService,
	activity ActivityRecorder,
	publisher events.Publisher,
	m *metrics.Metrics,
	origin string,
) *ShareService {
	return &ShareService{
		files:     files,
		downloads: downloads,
		activity:  activity,
		publisher: publisher,
		metrics:   m,
		origin:    origin,
		hashCost:  bcrypt.DefaultCost,
		now:       time.Now,
	}
}

// ShareURL builds the public link of fileID
func (s *ShareService) ShareURL(fileID string) string {
	return s.origin + "/share/" + fileID
}

// CreateShare makes a file of ownerID shared and returns its URL.
// Sharing an already shared file rotates the settings.
func (s *ShareService) CreateShare(ctx context.Context, ownerID, fileID string, mode types.ShareMode, password string) (string, error) {
	var hashed *string
	switch mode {
	case types.ShareModeLink:
	case types.ShareModePassword:
		if utf8.RuneCountInString(password) < MinSharePasswordLength {
			return "", errors.NewSharePasswordTooShortError(MinSharePasswordLength)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
		if err != nil {
			return "", errors.NewInternalError("failed to hash share password", err)
		}
		h := string(hash)
		hashed = &h
	default:
		return "", errors.NewInvalidParameterError("mode", "must be link or password")
	}

	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return "", err
	}

	url := s.ShareURL(file.ID)
	now := s.now()
	settings := models.ShareSettings{
		Shared:         true,
		ShareURL:       &url,
		SharePassword:  hashed,
		ShareMode:      &mode,
		ShareCreatedAt: &now,
	}
	if err := s.files.UpdateShare(ctx, file.ID, settings); err != nil {
		return "", errors.NewDatabaseError("create share", err)
	}
	applyShare(file, settings)

	s.metrics.Share("create")
	recordActivity(ctx, s.activity, &models.Activity{
		Kind:       models.ActivityShare,
		UserID:     ownerID,
		FileID:     file.ID,
		OccurredAt: now.UTC(),
	})
	publish(ctx, s.publisher, events.FilesTopic(ownerID), events.TypeFileUpdated, file)

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"fileId": file.ID,
		"mode":   mode,
	}).Info("File shared")
	return url, nil
}

// RemoveShare makes a file private and clears its link and password
func (s *ShareService) RemoveShare(ctx context.Context, ownerID, fileID string) error {
	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	settings := models.ShareSettings{Shared: false}
	if err := s.files.UpdateShare(ctx, file.ID, settings); err != nil {
		return errors.NewDatabaseError("remove share", err)
	}
	applyShare(file, settings)

	s.metrics.Share("remove")
	publish(ctx, s.publisher, events.FilesTopic(ownerID), events.TypeFileUpdated, file)
	return nil
}

// ResolveShare returns a shared file for a public visitor. Private and unknown
// files are both reported as not found.
func (s *ShareService) ResolveShare(ctx context.Context, fileID string, password *string) (*models.File, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewNotFoundError("share", fileID)
		}
		return nil, errors.NewDatabaseError("resolve share", err)
	}

	switch file.ShareState() {
	case types.ShareStatePrivate:
		return nil, errors.NewNotFoundError("share", fileID)
	case types.ShareStateSharedPassword:
		if password == nil {
			return nil, errors.NewSharePasswordRequiredError()
		}
		if bcrypt.CompareHashAndPassword([]byte(*file.SharePassword), []byte(*password)) != nil {
			return nil, errors.NewSharePasswordInvalidError()
		}
	case types.ShareStateSharedPublic:
	}
	return file, nil
}

// DownloadShared resolves a share and returns its contents
func (s *ShareService) DownloadShared(ctx context.Context, fileID string, password *string) (*models.File, *DownloadResult, error) {
	file, err := s.ResolveShare(ctx, fileID, password)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.downloads.Fetch(ctx, file, "", s.activity)
	return file, result, err
}

func (s *ShareService) ownedFile(ctx context.Context, ownerID, fileID string) (*models.File, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewNotFoundError("file", fileID)
		}
		return nil, errors.NewDatabaseError("get file", err)
	}
	if file.OwnerID != ownerID {
		return nil, errors.NewNotFoundError("file", fileID)
	}
	return file, nil
}

func applyShare(file *models.File, settings models.ShareSettings) {
	file.Shared = settings.Shared
	file.ShareURL = settings.ShareURL
	file.SharePassword = settings.SharePassword
	file.ShareMode = settings.ShareMode
	file.ShareCreatedAt = settings.ShareCreatedAt
}
