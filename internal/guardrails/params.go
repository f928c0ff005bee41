package guardrails

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ParamTable maps an action name to the parameter keys it cannot run
// without. A required key satisfies the check when present in either the
// plan's context or its params.
type ParamTable map[string][]string

// paramFile is the YAML shape of the required-parameter table
type paramFile struct {
	Actions map[string][]string `yaml:"actions"`
}

// DefaultParamTable returns the compiled-in table for the built-in inbox
// and application actions.
func DefaultParamTable() ParamTable {
	return ParamTable{
		"quarantine":  {"email_id"},
		"label":       {"email_id", "label_name"},
		"archive":     {"email_id"},
		"delete":      {"email_id"},
		"unsubscribe": {"email_id"},
		"apply":       {"job_id", "resume_id"},
		"follow_up":   {"application_id"},
	}
}

// LoadParamTable reads a table from a YAML file. Actions in the file extend
// or override the compiled-in defaults, mirroring how the audit enum config
// is layered.
func LoadParamTable(path string) (ParamTable, error) {
	table := DefaultParamTable()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter table %s: %w", path, err)
	}
	var file paramFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse parameter table %s: %w", path, err)
	}
	for action, params := range file.Actions {
		table[action] = params
	}
	return table, nil
}

// Actions returns the table's action names, sorted for stable logging.
func (t ParamTable) Actions() []string {
	actions := make([]string, 0, len(t))
	for action := range t {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}
