package service

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

const (
	FileTypeDocuments = "Documents"
	FileTypeImages    = "Images"
	FileTypeVideos    = "Videos"
	FileTypeArchives  = "Archives"
	FileTypeOther     = "Other"

	dailyUploadWindow = 7 * 24 * time.Hour
)

var fileTypesByExtension = map[string]string{
	"pdf": FileTypeDocuments, "doc": FileTypeDocuments, "docx": FileTypeDocuments,
	"txt": FileTypeDocuments, "xlsx": FileTypeDocuments, "xls": FileTypeDocuments,
	"ppt": FileTypeDocuments, "pptx": FileTypeDocuments,
	"jpg": FileTypeImages, "jpeg": FileTypeImages, "png": FileTypeImages, "gif": FileTypeImages,
	"webp": FileTypeImages, "svg": FileTypeImages, "bmp": FileTypeImages,
	"mp4": FileTypeVideos, "avi": FileTypeVideos, "mkv": FileTypeVideos,
	"mov": FileTypeVideos, "wmv": FileTypeVideos, "flv": FileTypeVideos,
	"zip": FileTypeArchives, "rar": FileTypeArchives, "7z": FileTypeArchives,
	"tar": FileTypeArchives, "gz": FileTypeArchives,
}

// FileType buckets a file name by extension
func FileType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if t, ok := fileTypesByExtension[ext]; ok {
		return t
	}
	return FileTypeOther
}

// StatsCache caches the admin summary. Implemented by storage.CacheService.
type StatsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// StatsService computes dashboard summaries
type StatsService struct {
	files     FileRepository
	plans     PlanRepository
	directory DirectoryRepository
	keys      KeyRepository
	activity  ActivityRecorder
	cache     StatsCache
	now       func() time.Time
}

// NewStatsService creates a new stats service. cache may be nil.
func NewStatsService(
	files FileRepository,
	plans PlanRepository,
	directory DirectoryRepository,
	keys KeyRepository,
	activity ActivityRecorder,
	cache StatsCache,
) *StatsService {
	return &StatsService{
		files:     files,
		plans:     plans,
		directory: directory,
		keys:      keys,
		activity:  activity,
		cache:     cache,
		now:       time.Now,
	}
}

// UserStats summarizes the storage of ownerID
func (s *StatsService) UserStats(ctx context.Context, ownerID string) (*models.UserStats, error) {
	files, err := s.files.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.NewDatabaseError("list files", err)
	}

	stats := &models.UserStats{
		TotalFiles: len(files),
		FileTypes: map[string]int{
			FileTypeDocuments: 0,
			FileTypeImages:    0,
			FileTypeVideos:    0,
			FileTypeArchives:  0,
			FileTypeOther:     0,
		},
	}
	for _, f := range files {
		if f.Shared {
			stats.SharedFiles++
		}
		stats.FileTypes[FileType(f.Name)]++
	}

	plan, err := s.plans.Get(ctx, ownerID)
	switch {
	case err == nil:
		stats.Plan = plan.Type
		stats.StorageUsed = plan.StorageUsed
		stats.StorageLimit = plan.StorageLimit
	case isNotFound(err):
		limit := models.FreeStorageLimit
		stats.Plan = types.PlanFree
		stats.StorageLimit = &limit
	default:
		return nil, errors.NewDatabaseError("get plan", err)
	}
	return stats, nil
}

const adminStatsCacheKey = "stats:admin"

// AdminStats summarizes the deployment for administrators
func (s *StatsService) AdminStats(ctx context.Context, actor auth.Principal) (*models.AdminStats, error) {
	if !actor.Can(auth.CapViewStats) {
		return nil, errors.NewForbiddenError("stats require admin access")
	}
	logger := logging.FromContext(ctx)

	if s.cache != nil {
		var cached models.AdminStats
		found, err := s.cache.Get(ctx, adminStatsCacheKey, &cached)
		if err != nil {
			logger.WithError(err).Warn("Stats cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	stats := &models.AdminStats{}
	var err error

	if stats.TotalUsers, err = s.directory.Count(ctx); err != nil {
		return nil, errors.NewDatabaseError("count users", err)
	}

	planCounts, err := s.plans.CountByType(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("count plans", err)
	}
	stats.PremiumUsers = planCounts[types.PlanPremium] + planCounts[types.PlanLifetime]

	if stats.TotalFiles, stats.SharedFiles, stats.StorageUsed, err = s.files.Totals(ctx); err != nil {
		return nil, errors.NewDatabaseError("total files", err)
	}

	if stats.Keys, err = s.keys.Stats(ctx); err != nil {
		return nil, errors.NewDatabaseError("key stats", err)
	}

	if s.activity != nil {
		since := s.now().UTC().Add(-dailyUploadWindow)
		daily, err := s.activity.DailyCounts(ctx, models.ActivityUpload, since)
		if err != nil {
			logger.WithError(err).Warn("Failed to read daily uploads")
		} else {
			stats.DailyUploads = daily
		}
	}
	if stats.DailyUploads == nil {
		stats.DailyUploads = []models.DailyCount{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, adminStatsCacheKey, stats); err != nil {
			logger.WithError(err).Warn("Stats cache write failed")
		}
	}
	return stats, nil
}
