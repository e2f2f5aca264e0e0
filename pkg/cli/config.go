package cli

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// UserConfig represents ~/.qtune/config.yaml: persistent defaults that
// flags and environment variables override.
type UserConfig struct {
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api-key,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// LoadUserConfig reads the user config file. A missing file is not an
// error; it just yields zero values.
func LoadUserConfig() (*UserConfig, error) {
	path, err := userConfigPath()
	if err != nil {
		return &UserConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &UserConfig{}, nil
		}
		return nil, err
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func userConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".qtune", "config.yaml"), nil
}
