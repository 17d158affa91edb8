package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/toolsascode/arcade/internal/logger"
)

// scriptFileRegex matches {version}_{name}.up.sql and {version}_{name}.down.sql
var scriptFileRegex = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_\-]+)\.(up|down)\.sql$`)

// LoadDir walks dir and builds a registry of Script migrations from
// {version}_{name}.up.sql / .down.sql pairs. language is the statement
// language the scripts are sent with ("" for sqlscript).
//
// A missing directory yields an empty registry. A down script without its up
// script, or two names for the same version, is an error.
func LoadDir(dir, language string) (*Registry, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Warnf("Migrations directory does not exist: %s", dir)
		return New()
	}

	scripts := make(map[int64]*Script)
	hasUp := make(map[int64]bool)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		matches := scriptFileRegex.FindStringSubmatch(info.Name())
		if len(matches) != 4 {
			return nil
		}

		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid version: %w", path, err)
		}
		name, direction := matches[2], matches[3]

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		s, ok := scripts[version]
		if !ok {
			s = &Script{ID: version, Label: name, Language: language}
			scripts[version] = s
		} else if s.Label != name {
			return invalidRegistry("version %d used by %q and %q", version, s.Label, name)
		}

		if direction == "up" {
			s.UpSQL = string(content)
			hasUp[version] = true
		} else {
			s.DownSQL = string(content)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning migrations directory: %w", err)
	}

	units := make([]Migration, 0, len(scripts))
	for version, s := range scripts {
		if !hasUp[version] {
			return nil, invalidRegistry("version %d (%s) has a down script but no up script", version, s.Label)
		}
		if strings.TrimSpace(s.DownSQL) == "" {
			logger.Debugf("Migration %d_%s has no down script", version, s.Label)
		}
		units = append(units, s)
	}

	reg, err := Sorted(units...)
	if err != nil {
		return nil, err
	}
	logger.Infof("Loaded %d migration(s) from %s", reg.Len(), dir)
	return reg, nil
}
