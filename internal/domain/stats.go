package domain

import "time"

// ExportStats holds statistics about one course export.
type ExportStats struct {
	Keyword             string
	Topics              int
	ExcludedTopics      int
	MissingRepositories int
	Files               int
	Texts               int
	SkippedFiles        int
	ObjectKey           string
	ArchiveSize         int64
	Duration            time.Duration
}

// BatchStats holds statistics about a run over many courses.
type BatchStats struct {
	Total     int
	Succeeded int
	Failed    int
}

// ImportStats holds the outcome of polling submitted migrations.
type ImportStats struct {
	Submitted  int
	Completed  int
	Failed     int
	TimedOut   int
	LockErrors int
	Duration   time.Duration
}
