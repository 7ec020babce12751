package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// InfluxFileName is the destination credentials file expected in the
// working directory when the load stage is enabled.
const InfluxFileName = "influxdb.yaml"

// InfluxConfig holds the destination datastore credentials.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"required,url"`
	Org    string `yaml:"org" validate:"required"`
	Bucket string `yaml:"bucket" validate:"required"`
	Token  string `yaml:"token" validate:"required"`
}

type influxFile struct {
	InfluxDB InfluxConfig `yaml:"influxdb"`
}

// LoadInflux reads and validates the credentials file under workingDir.
func LoadInflux(workingDir string) (*InfluxConfig, error) {
	path := filepath.Join(workingDir, InfluxFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var file influxFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	if err := validator.New().Struct(&file.InfluxDB); err != nil {
		return nil, fmt.Errorf("invalid influxdb credentials in %s: %w", path, err)
	}
	return &file.InfluxDB, nil
}
