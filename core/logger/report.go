package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	InvalidEntries int        `json:"invalid_entries,omitempty"`

	Launch  LaunchReport  `json:"launch_report"`
	Exit    ExitReport    `json:"exit_report"`
	Reap    ReapReport    `json:"reap_report"`
	Builtin BuiltinReport `json:"builtin_report"`
	Failure FailureReport `json:"failure_report"`
}

// Update adds the entry to the report.
func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	r.Sessions.Increment(le.SessionID)

	switch event := le.GetLogType().(type) {
	case *Launch:
		r.Launch.update(event)
	case *Exit:
		r.Exit.update(event)
	case *Reap:
		r.Reap.update(event)
	case *Builtin:
		r.Builtin.update(event)
	case *Failure:
		r.Failure.update(event)
	default:
		r.InvalidEntries++
	}
}

type LaunchReport struct {
	// Name of the program and the number of times it was started.
	CommandNames StrCounter `json:"command_names"`
	Background   int        `json:"background"`
}

func (r *LaunchReport) update(l *Launch) {
	if len(l.Command) > 0 {
		r.CommandNames.Increment(l.Command[0])
	}
	if l.Background {
		r.Background++
	}
}

type ExitReport struct {
	Statuses StrCounter `json:"statuses"`
}

func (r *ExitReport) update(e *Exit) {
	r.Statuses.Increment(strconv.Itoa(e.Status))
}

type ReapReport struct {
	Count    int        `json:"count"`
	Statuses StrCounter `json:"statuses"`
}

func (r *ReapReport) update(e *Reap) {
	r.Count++
	r.Statuses.Increment(strconv.Itoa(e.Status))
}

type BuiltinReport struct {
	CommandNames StrCounter `json:"command_names"`
}

func (r *BuiltinReport) update(b *Builtin) {
	if len(b.Command) > 0 {
		r.CommandNames.Increment(b.Command[0])
	}
}

type FailureReport struct {
	Failures *PathCounter `json:"failures"`
}

func (r *FailureReport) update(f *Failure) {
	if r.Failures == nil {
		r.Failures = NewPathCounter("command", "kind")
	}

	name := ""
	if len(f.Command) > 0 {
		name = f.Command[0]
	}
	r.Failures.Increment(name, f.Kind)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implements custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of tuples seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic(fmt.Sprintf("wrong number of columns to add: got %d want %d", len(toAdd), len(ctr.cols)))
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implements custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
