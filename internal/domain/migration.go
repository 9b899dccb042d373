package domain

import "time"

type JobState string

const (
	JobPending   JobState = "pending"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
)

// StateFromWorkflow maps a Canvas progress workflow_state onto a job state.
// Anything that is not terminal keeps the job pending.
func StateFromWorkflow(workflowState string) JobState {
	switch workflowState {
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobPending
	}
}

type Folder struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	FullName       string `json:"full_name"`
	ParentFolderID *int64 `json:"parent_folder_id"`
	Locked         bool   `json:"locked"`
}

type Progress struct {
	ID            int64   `json:"id"`
	WorkflowState string  `json:"workflow_state"`
	Completion    float64 `json:"completion"`
	Message       *string `json:"message"`
}

type MigrationJob struct {
	Keyword     string
	CourseID    string
	FolderID    int64
	ObjectKey   string
	ProgressURL string
	State       JobState
	SubmittedAt time.Time
	FinishedAt  time.Time
}

func (j *MigrationJob) Terminal() bool {
	return j.State != JobPending
}

type EventType string

const (
	EventArchivePublished EventType = "archive_published"
	EventImportSubmitted  EventType = "import_submitted"
	EventImportCompleted  EventType = "import_completed"
	EventImportFailed     EventType = "import_failed"
	EventImportTimedOut   EventType = "import_timed_out"
)

type MigrationEvent struct {
	Type        EventType `json:"type"`
	Keyword     string    `json:"keyword"`
	CourseID    string    `json:"course_id,omitempty"`
	ObjectKey   string    `json:"object_key,omitempty"`
	ProgressURL string    `json:"progress_url,omitempty"`
	State       JobState  `json:"state,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
