package config

import (
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	DirName           = "bshell"

	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

// ErrEventLogDisabled is returned when opening the event log with an empty
// event_log setting.
var ErrEventLogDisabled = errors.New("event log is disabled")

type Configuration struct {
	configFs afero.Fs
	dir      string

	Prompt       string `json:"prompt" validate:"required"`
	Color        string `json:"color" validate:"oneof=always auto never"`
	HistoryFile  string `json:"history_file"`
	HistoryLimit int    `json:"history_limit" validate:"gte=-1"`
	EventLog     string `json:"event_log"`
	Debug        bool   `json:"debug"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// Dir is the directory the configuration was loaded from.
func (c *Configuration) Dir() string {
	return c.dir
}

// HistoryPath returns the path of the history file, or an empty string if
// history isn't saved. Relative names are inside the configuration directory.
func (c *Configuration) HistoryPath() string {
	if c.HistoryFile == "" || filepath.IsAbs(c.HistoryFile) {
		return c.HistoryFile
	}
	return filepath.Join(c.dir, c.HistoryFile)
}

// EventLogPath returns the path of the event log, or an empty string if it's
// disabled. The event log always lives in the configuration directory.
func (c *Configuration) EventLogPath() string {
	if c.EventLog == "" {
		return ""
	}
	return filepath.Join(c.dir, c.EventLog)
}

// OpenEventLog opens the event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	if c.EventLog == "" {
		return nil, ErrEventLogDisabled
	}
	if err := c.fs().MkdirAll(filepath.Dir(c.EventLog), 0700); err != nil {
		return nil, err
	}
	return c.fs().OpenFile(c.EventLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadEventLog opens the event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	if c.EventLog == "" {
		return nil, ErrEventLogDisabled
	}
	return c.fs().OpenFile(c.EventLog, os.O_RDONLY, 0600)
}

// DefaultDir is the configuration directory used when none is given.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, DirName)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
