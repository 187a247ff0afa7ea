package models

import "time"

// ActivityKind names a user action recorded in the activity store
type ActivityKind string

const (
	ActivityUpload   ActivityKind = "upload"
	ActivityDownload ActivityKind = "download"
	ActivityDelete   ActivityKind = "delete"
	ActivityShare    ActivityKind = "share"
	ActivityRedeem   ActivityKind = "redeem"
)

// Activity is one row of the activity log
type Activity struct {
	Kind       ActivityKind `json:"kind"`
	UserID     string       `json:"userId"`
	FileID     string       `json:"fileId,omitempty"`
	Bytes      int64        `json:"bytes"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// DailyCount is the number of activities of one kind on one day
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count uint64    `json:"count"`
}
