package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	return load(afero.NewBasePathFs(afero.NewOsFs(), path), path)
}

// LoadOrDefault loads the configuration from the directory, falling back to
// the built in defaults if the directory has no configuration file.
func LoadOrDefault(path string) (*Configuration, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		if filepath.Base(path) == ConfigurationName {
			path = filepath.Dir(path)
		}
		cfg = defaultConfig()
		cfg.configFs = afero.NewBasePathFs(afero.NewOsFs(), path)
		cfg.dir = path
		return cfg, nil
	}
	return cfg, err
}

func load(configFs afero.Fs, dir string) (*Configuration, error) {
	configContents, err := afero.ReadFile(configFs, ConfigurationName)
	if err != nil {
		return nil, err
	}

	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigurationName, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigurationName, err)
	}

	out.configFs = configFs
	out.dir = dir
	return &out, nil
}
