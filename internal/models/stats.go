package models

import "github.com/pinpincloud/internal/types"

// UserStats summarizes one user's storage
type UserStats struct {
	TotalFiles   int            `json:"totalFiles"`
	SharedFiles  int            `json:"sharedFiles"`
	StorageUsed  int64          `json:"storageUsed"`
	StorageLimit *int64         `json:"storageLimit"`
	Plan         types.PlanType `json:"plan"`
	FileTypes    map[string]int `json:"fileTypes"`
}

// AdminStats summarizes the whole deployment
type AdminStats struct {
	TotalUsers   int          `json:"totalUsers"`
	PremiumUsers int          `json:"premiumUsers"`
	TotalFiles   int          `json:"totalFiles"`
	SharedFiles  int          `json:"sharedFiles"`
	StorageUsed  int64        `json:"storageUsed"`
	Keys         KeyStats     `json:"keys"`
	DailyUploads []DailyCount `json:"dailyUploads"`
}
