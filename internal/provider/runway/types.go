// Package runway implements the provider adapter for the Runway task API.
// Generation is asynchronous: a task is created, then polled on a fixed
// interval until it reaches a terminal state or the attempt ceiling.
package runway

// TaskStatus represents the status of a Runway task.
type TaskStatus string

// Runway task statuses aligned with the Runway API.
const (
	StatusPending   TaskStatus = "PENDING"
	StatusThrottled TaskStatus = "THROTTLED"
	StatusRunning   TaskStatus = "RUNNING"
	StatusSucceeded TaskStatus = "SUCCEEDED"
	StatusFailed    TaskStatus = "FAILED"
	StatusCancelled TaskStatus = "CANCELLED"
)

// IsTerminal returns true if the status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ratioMap translates abstract aspect ratios into the concrete pixel pairs
// Runway accepts; the API takes dimensions, not ratios.
var ratioMap = map[string]string{
	"16:9":  "1280:768",
	"9:16":  "768:1280",
	"1:1":   "960:960",
	"4:3":   "1104:832",
	"3:4":   "832:1104",
	"21:9":  "1584:672",
	"16:10": "1280:800",
}

// defaultRatio is used when the abstract ratio has no mapping.
const defaultRatio = "1280:768"

// translateRatio maps an abstract aspect ratio to Runway's pixel-pair
// notation, falling back to the default landscape size.
func translateRatio(aspectRatio string) string {
	if mapped, ok := ratioMap[aspectRatio]; ok {
		return mapped
	}
	return defaultRatio
}

// createTaskRequest is the body of a task-creation call.
type createTaskRequest struct {
	Model       string `json:"model"`
	PromptText  string `json:"promptText,omitempty"`
	PromptImage string `json:"promptImage,omitempty"`
	Ratio       string `json:"ratio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	Seed        *int64 `json:"seed,omitempty"`
}

// createTaskResponse is Runway's answer to a task-creation call.
type createTaskResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// taskResponse is Runway's answer to a task-status call.
type taskResponse struct {
	ID      string     `json:"id"`
	Status  TaskStatus `json:"status"`
	Output  []string   `json:"output,omitempty"`
	Failure string     `json:"failure,omitempty"`
}
