package models

import "time"

// RunResult holds the overall result of a finder run.
type RunResult struct {
	Bulletins       []BulletinID
	Links           []DownloadLink
	StartTime       time.Time
	EndTime         time.Time
	Outcomes        map[string]int
	FailedBulletins []string
	RequestCount    int
	RetryCount      int
	DryRun          bool
}
