package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/qianqian121/GIFT-Grab/pkg/configdef"
	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
	"gopkg.in/yaml.v3"
)

const (
	appName        = "giftgrab"
	configFileName = "config.json"
	catalogName    = "catalog.db"
	configEnvVar   = "GIFTGRAB_CONFIG"
)

var fs afero.Fs = afero.NewOsFs()

func load() (configdef.Values, error) {
	configPath, err := resolveConfigPath()
	if err != nil {
		return configdef.Values{}, err
	}
	return loadFrom(configPath)
}

func loadFrom(configPath string) (configdef.Values, error) {
	var values configdef.Values

	log.Info("Resolved config file location: %s", configPath)
	file, err := readConfigFile(configPath)
	if err != nil {
		return configdef.Values{}, err
	}

	if err := unmarshal(configPath, file, &values); err != nil {
		return configdef.Values{}, err
	}

	if err = values.RunValidate(); err != nil {
		return configdef.Values{}, err
	}

	if err := loadDefaults(&values); err != nil {
		return configdef.Values{}, err
	}

	return values, nil
}

func loadDefaults(values *configdef.Values) error {
	if len(values.Backend) == 0 {
		values.Backend = defaultSettings[BACKEND].(string)
	}
	if len(values.Catalog) == 0 {
		dir, err := configDir()
		if err != nil {
			return err
		}
		values.Catalog = filepath.Join(dir, catalogName)
	}
	for i := range values.Recordings {
		rec := &values.Recordings[i]
		if len(rec.Source.Colour) == 0 {
			rec.Source.Colour = defaultSettings[COLOUR].(string)
		}
		if len(rec.Target.Codec) == 0 {
			rec.Target.Codec = defaultSettings[CODEC].(string)
		}
		if rec.Target.FrameRate == 0 {
			rec.Target.FrameRate = defaultSettings[FRAMERATE].(float64)
		}
	}
	return nil
}

var readConfigFile = func(path string) ([]byte, error) {
	return afero.ReadFile(fs, path)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func unmarshal(path string, content []byte, values *configdef.Values) error {
	if isYAML(path) {
		if err := yaml.Unmarshal(content, values); err != nil {
			return errors.Errorf("parsing configuration error: %v", err)
		}
		return nil
	}
	if err := json.Unmarshal(content, values); err != nil {
		return errors.Errorf("parsing configuration error: %v", err)
	}
	return nil
}

func resolveConfigPath() (string, error) {
	configPath := os.Getenv(configEnvVar)
	if len(configPath) > 0 {
		return configPath, nil
	}

	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

func configDir() (string, error) {
	configParentDir, err := userConfigDir()
	if err != nil {
		return "", xerror.Errorf("unable to resolve %s location: %w", configFileName, err)
	}
	return filepath.Join(configParentDir, appName), nil
}

var userConfigDir = func() (string, error) {
	return os.UserConfigDir()
}
