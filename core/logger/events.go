// Package logger is a standardized event logging framework for the shell.
package logger

// LogEntry is one line of the event log. Exactly one event field is set.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	Launch  *Launch  `json:"launch,omitempty"`
	Exit    *Exit    `json:"exit,omitempty"`
	Reap    *Reap    `json:"reap,omitempty"`
	Builtin *Builtin `json:"builtin,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// LogType is implemented by every event that can be recorded.
type LogType interface {
	setOn(le *LogEntry)
}

// GetLogType returns the event held by the entry, or nil if there is none.
func (le *LogEntry) GetLogType() LogType {
	switch {
	case le.Launch != nil:
		return le.Launch
	case le.Exit != nil:
		return le.Exit
	case le.Reap != nil:
		return le.Reap
	case le.Builtin != nil:
		return le.Builtin
	case le.Failure != nil:
		return le.Failure
	default:
		return nil
	}
}

// Launch is recorded when a process starts.
type Launch struct {
	Command    []string `json:"command"`
	Pid        int      `json:"pid"`
	Pgid       int      `json:"pgid"`
	Background bool     `json:"background,omitempty"`
}

// Exit is recorded when a foreground process is waited on.
type Exit struct {
	Command []string `json:"command"`
	Pid     int      `json:"pid"`
	Status  int      `json:"status"`
}

// Reap is recorded when a background job is collected.
type Reap struct {
	JobID     string `json:"job_id"`
	JobNumber int    `json:"job_number"`
	Name      string `json:"name"`
	Pid       int    `json:"pid"`
	Status    int    `json:"status"`
}

// Builtin is recorded when a shell builtin runs.
type Builtin struct {
	Command []string `json:"command"`
	Status  int      `json:"status"`
}

// Failure is recorded when a command can't be run.
type Failure struct {
	Command []string `json:"command,omitempty"`
	Kind    string   `json:"kind"`
	Error   string   `json:"error"`
}

func (e *Launch) setOn(le *LogEntry)  { le.Launch = e }
func (e *Exit) setOn(le *LogEntry)    { le.Exit = e }
func (e *Reap) setOn(le *LogEntry)    { le.Reap = e }
func (e *Builtin) setOn(le *LogEntry) { le.Builtin = e }
func (e *Failure) setOn(le *LogEntry) { le.Failure = e }
