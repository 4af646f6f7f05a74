package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"aide/internal/logging"
)

// FileTriggerStore reads trigger definitions from YAML files in a directory,
// one trigger per file, so the owner can add or edit recurring actions next
// to the approval vault.
type FileTriggerStore struct {
	dir    string
	logger logging.Logger
}

// NewFileTriggerStore creates a store over dir, creating it if needed.
func NewFileTriggerStore(dir string) (*FileTriggerStore, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create triggers directory: %w", err)
	}
	return &FileTriggerStore{
		dir:    dir,
		logger: logging.NewComponentLogger("TriggerStore"),
	}, nil
}

// List returns all valid triggers, sorted by name. Unreadable or invalid
// files are logged and skipped so one bad definition never hides the rest.
func (s *FileTriggerStore) List() ([]Trigger, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read triggers directory: %w", err)
	}

	var triggers []Trigger
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Error("Skipping unreadable trigger file %s: %v", name, err)
			continue
		}
		var trigger Trigger
		if err := yaml.Unmarshal(data, &trigger); err != nil {
			s.logger.Error("Skipping malformed trigger file %s: %v", name, err)
			continue
		}
		if err := trigger.Validate(); err != nil {
			s.logger.Error("Skipping invalid trigger file %s: %v", name, err)
			continue
		}
		triggers = append(triggers, trigger)
	}

	sort.Slice(triggers, func(i, j int) bool { return triggers[i].Name < triggers[j].Name })
	return triggers, nil
}

// Save writes the trigger definition to <name>.yaml, overwriting any
// existing definition with the same name.
func (s *FileTriggerStore) Save(trigger Trigger) error {
	if err := trigger.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("encode trigger %s: %w", trigger.Name, err)
	}
	path := filepath.Join(s.dir, trigger.Name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write trigger file: %w", err)
	}
	return nil
}

// Delete removes the trigger definition. Deleting a trigger that does not
// exist is not an error.
func (s *FileTriggerStore) Delete(name string) error {
	err := os.Remove(filepath.Join(s.dir, name+".yaml"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete trigger file: %w", err)
	}
	return nil
}
