package model

import "time"

// DiagnosisResult is immutable once written.
type DiagnosisResult struct {
	ID           string
	UserID       string
	ImageRef     string
	CropType     string
	Disease      string
	Confidence   float64
	Treatment    string
	Prevention   string
	ModelVersion string
	CreatedAt    time.Time
}

// UsageEntry is one row of the append-only service usage log.
type UsageEntry struct {
	ID        int64
	ProfileID string
	Action    string
	Quantity  int
	CreatedAt time.Time
}

// UsageReportRow aggregates a profile's consumption for one period.
type UsageReportRow struct {
	ProfileID string
	Email     string
	FullName  string
	Role      Role
	Tier      Tier
	Action    string
	Used      int
	// Limit is the effective limit, -1 when unlimited.
	Limit     int
}
