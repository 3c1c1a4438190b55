package config

import (
	"log"
	"os"

	"github.com/spf13/afero"
)

// Initialize writes the default configuration to dir unless one already
// exists, then loads it.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	if err := initialize(afero.NewBasePathFs(afero.NewOsFs(), dir), logger); err != nil {
		return nil, err
	}
	return Load(dir)
}

func initialize(configFs afero.Fs, logger *log.Logger) error {
	exists, err := afero.Exists(configFs, ConfigurationName)
	if err != nil {
		return err
	}
	if exists {
		logger.Printf("%s already exists, leaving it unchanged", ConfigurationName)
		return nil
	}

	logger.Printf("Writing %s", ConfigurationName)
	return afero.WriteFile(configFs, ConfigurationName, defaultConfigData, 0600)
}
