package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/qianqian121/GIFT-Grab/pkg/configdef"
	"github.com/tauraamui/xerror"
	"gopkg.in/yaml.v3"
)

func create() error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	data, err := loadRawDefaultConfig(path)
	if err != nil {
		return xerror.Errorf("unable to init default config into memory: %w", err)
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	if err := writeConfigToDisk(data, path, false); err != nil {
		if errors.Is(err, os.ErrExist) {
			return configdef.ErrConfigAlreadyExists
		}
		return err
	}
	return nil
}

func writeConfigToDisk(data []byte, path string, overwrite bool) error {
	flags := os.O_RDWR | os.O_CREATE
	if !overwrite {
		flags |= os.O_EXCL
	}

	file, err := fs.OpenFile(path, flags, 0666)
	if err != nil {
		return xerror.Errorf("unable to create/open file: %w", err)
	}
	defer file.Close()

	bc, err := file.Write(data)
	if err != nil {
		return xerror.Errorf("unable to write config to file: %s: %w", path, err)
	}

	if bc != len(data) {
		return xerror.Errorf("unable to write full config data to file: %s", path)
	}
	return nil
}

func loadRawDefaultConfig(path string) ([]byte, error) {
	values := configdef.Values{
		Backend:    defaultSettings[BACKEND].(string),
		Recordings: defaultSettings[RECORDINGS].([]configdef.Recording),
	}
	if isYAML(path) {
		return yaml.Marshal(values)
	}
	return json.MarshalIndent(values, "", " ")
}

func ensureParentDir(path string) error {
	parentDirPath := filepath.Dir(path)
	if _, err := fs.Stat(parentDirPath); errors.Is(err, os.ErrNotExist) {
		if err := fs.MkdirAll(parentDirPath, os.ModeDir|os.ModePerm); err != nil {
			return xerror.Errorf("unable to create config parent directory: %w", err)
		}
	}
	return nil
}
