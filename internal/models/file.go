package models

import (
	"fmt"
	"time"

	"github.com/pinpincloud/internal/types"
)

// File is the metadata of one uploaded blob
type File struct {
	ID             string           `json:"id" db:"id"`
	OwnerID        string           `json:"userId" db:"owner_id"`
	Name           string           `json:"name" db:"name"`
	SizeBytes      int64            `json:"sizeBytes" db:"size_bytes"`
	SizeLabel      string           `json:"size" db:"size_label"`
	UploadedAt     time.Time        `json:"uploadedAt" db:"uploaded_at"`
	StoragePointer string           `json:"-" db:"storage_path"`
	Shared         bool             `json:"shared" db:"shared"`
	ShareURL       *string          `json:"shareUrl,omitempty" db:"share_url"`
	SharePassword  *string          `json:"-" db:"share_password"`
	ShareMode      *types.ShareMode `json:"shareMode,omitempty" db:"share_mode"`
	ShareCreatedAt *time.Time       `json:"shareCreatedAt,omitempty" db:"share_created_at"`
}

// ShareState derives the sharing state from the stored fields
func (f *File) ShareState() types.ShareState {
	if !f.Shared {
		return types.ShareStatePrivate
	}
	if f.SharePassword != nil {
		return types.ShareStateSharedPassword
	}
	return types.ShareStateSharedPublic
}

// FormatSize renders a byte count the way the file list shows it:
// megabytes above 1 MiB, kilobytes otherwise, two decimals.
func FormatSize(bytes int64) string {
	const mib = 1024 * 1024
	if bytes > mib {
		return fmt.Sprintf("%.2fMB", float64(bytes)/mib)
	}
	return fmt.Sprintf("%.2fKB", float64(bytes)/1024)
}

// StoragePath builds the blob pointer for a new upload
func StoragePath(ownerID string, at time.Time, name string) string {
	return fmt.Sprintf("files/%s/%d_%s", ownerID, at.UnixMilli(), name)
}

// ShareSettings is the write applied by a share or unshare operation
type ShareSettings struct {
	Shared         bool
	ShareURL       *string
	SharePassword  *string
	ShareMode      *types.ShareMode
	ShareCreatedAt *time.Time
}

// OrphanBlob is a blob whose metadata is gone but whose delete failed
type OrphanBlob struct {
	StoragePointer string    `json:"storagePointer" db:"storage_path"`
	OwnerID        string    `json:"ownerId" db:"owner_id"`
	Attempts       int       `json:"attempts" db:"attempts"`
	LastError      string    `json:"lastError" db:"last_error"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}
