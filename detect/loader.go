package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"vigil/core"
	"vigil/metrics"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape of a rule document: either a single rule or a
// list under a "rules" key.
type ruleFile struct {
	Rules []core.CorrelationRule `yaml:"rules"`
}

// RuleLoader reads YAML rule files from a directory and publishes them as a
// new snapshot. A reload is all or nothing: one bad rule rejects the whole
// directory and the previous snapshot stays active.
type RuleLoader struct {
	dir      string
	store    *core.SnapshotStore
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewRuleLoader creates a loader for the given rules directory.
func NewRuleLoader(dir string, store *core.SnapshotStore, logger *zap.SugaredLogger) *RuleLoader {
	return &RuleLoader{
		dir:      dir,
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

// Load parses and validates every rule file, then swaps the snapshot. Returns
// the new snapshot version. Configuration errors abort the reload and are
// returned to the caller rather than degraded.
func (l *RuleLoader) Load() (int64, error) {
	rules, err := l.ReadAll()
	if err != nil {
		return 0, err
	}

	version := l.store.Swap(rules)
	metrics.SnapshotReloads.Inc()
	l.logger.Infow("Rule snapshot loaded", "version", version, "rules", len(rules), "dir", l.dir)
	return version, nil
}

// ReadAll parses and validates the rule directory without publishing. The
// lint command uses this path to check rules offline.
func (l *RuleLoader) ReadAll() ([]core.CorrelationRule, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory %s: %w", l.dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	var rules []core.CorrelationRule
	seen := make(map[string]string)
	for _, name := range files {
		path := filepath.Join(l.dir, name)
		parsed, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		for _, rule := range parsed {
			if prev, dup := seen[rule.ID]; dup {
				return nil, fmt.Errorf("duplicate rule ID %q in %s (already defined in %s)", rule.ID, name, prev)
			}
			seen[rule.ID] = name
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func (l *RuleLoader) loadFile(path string) ([]core.CorrelationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %s: %w", path, err)
	}

	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}
	rules := doc.Rules
	if len(rules) == 0 {
		// Fall back to a single top-level rule document.
		var single core.CorrelationRule
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
		}
		if single.ID == "" {
			return nil, fmt.Errorf("rule file %s contains no rules", path)
		}
		rules = []core.CorrelationRule{single}
	}

	for i := range rules {
		if err := l.validate.Struct(&rules[i]); err != nil {
			return nil, fmt.Errorf("rule file %s: rule %q failed validation: %w", path, rules[i].ID, err)
		}
		if err := rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule file %s: %w", path, err)
		}
	}
	return rules, nil
}
