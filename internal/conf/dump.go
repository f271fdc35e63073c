package conf

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// Dump renders settings as YAML in the layout Load reads.
func Dump(settings *Settings) ([]byte, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal").
			Build()
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath. The file is written to a
// temporary file in the same directory and renamed into place.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := Dump(settings)
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return saveError(err, configPath)
	}

	tempFile, err := os.CreateTemp(dir, "audiostream-*.yaml")
	if err != nil {
		return saveError(err, configPath)
	}
	tempFileName := tempFile.Name()
	// Removing after a successful rename is a no-op
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return saveError(err, configPath)
	}
	if err := tempFile.Close(); err != nil {
		return saveError(err, configPath)
	}
	if err := os.Rename(tempFileName, configPath); err != nil {
		return saveError(err, configPath)
	}

	GetLogger().Info("settings saved", logger.String("path", configPath))
	return nil
}

func saveError(err error, path string) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("operation", "save").
		Context("path", path).
		Build()
}
