package ipc

// PingRequest checks that the daemon is responsive.
type PingRequest struct{}

// PingResponse acknowledges a ping.
type PingResponse struct {
	Message string
}

// StatusRequest asks for the daemon's runtime state.
type StatusRequest struct{}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Running      bool
	PID          int
	APIBind      string
	LedgerDBPath string
	JobsDBPath   string
	LockPath     string
	SampleCount  int
	JobCounts    map[string]int
}

// SyncRequest triggers a media library sync job.
type SyncRequest struct{}

// SyncResponse carries the queued sync job id.
type SyncResponse struct {
	JobID string
}

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse acknowledges shutdown.
type StopResponse struct {
	Stopped bool
}
