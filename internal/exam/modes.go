package exam

import (
	"fmt"
	"path"
	"strings"
)

// ModeRule selects a parse mode for exams whose identifier matches Pattern.
// Pattern is a path.Match glob checked against the whole identifier and
// against its last element.
type ModeRule struct {
	Pattern string `mapstructure:"pattern" json:"pattern"`
	Mode    Mode   `mapstructure:"mode" json:"mode"`
}

// ModeRules is an ordered rule list. The first matching rule wins.
type ModeRules []ModeRule

// Resolve returns the mode for identifier, or ModeDefault when no rule matches
func (rules ModeRules) Resolve(identifier string) Mode {
	id := strings.ReplaceAll(identifier, "\\", "/")
	base := path.Base(id)
	for _, rule := range rules {
		if ok, _ := path.Match(rule.Pattern, id); ok {
			return rule.Mode
		}
		if ok, _ := path.Match(rule.Pattern, base); ok {
			return rule.Mode
		}
	}
	return ModeDefault
}

// Validate checks every pattern and mode
func (rules ModeRules) Validate() error {
	for i, rule := range rules {
		if rule.Pattern == "" {
			return fmt.Errorf("parse mode rule %d: pattern cannot be empty", i)
		}
		if _, err := path.Match(rule.Pattern, ""); err != nil {
			return fmt.Errorf("parse mode rule %d: invalid pattern %q: %w", i, rule.Pattern, err)
		}
		if _, err := ParseMode(string(rule.Mode)); err != nil || rule.Mode == "" {
			return fmt.Errorf("parse mode rule %d: invalid mode %q", i, rule.Mode)
		}
	}
	return nil
}
