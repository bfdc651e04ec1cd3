package yara

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
)

// SubstringRule is one rule of the built-in scanner: a named byte
// pattern with optional tags and a score.
type SubstringRule struct {
	Name    string
	Pattern []byte
	Tags    []string
	Score   uint32
}

// SubstringScanner is the in-process RuleScanner used when no external
// engine is plugged in: a rule matches when its pattern occurs anywhere
// in the scanned data. The certitude is the highest matching rule's
// score. With fastmode, scanning stops at the first match, per the
// engine's fastmode flag in Generator::CreateTask.
type SubstringScanner struct {
	rules    []SubstringRule
	fastmode bool
}

// NewSubstringScanner builds a scanner over a fixed rule set.
func NewSubstringScanner(rules []SubstringRule, fastmode bool) *SubstringScanner {
	return &SubstringScanner{rules: rules, fastmode: fastmode}
}

// CompileRuleFiles loads every file in paths into a SubstringScanner.
// Rule files hold one rule per line in the form `name:pattern` or
// `name:pattern:tag1,tag2`; empty lines and lines starting with `//`
// are skipped. Matching rules score 100.
func CompileRuleFiles(paths []string, fastmode bool) (*SubstringScanner, error) {
	var rules []SubstringRule
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("yara: could not open rule file %q: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "//") {
				continue
			}
			parts := strings.SplitN(line, ":", 3)
			if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
				f.Close()
				return nil, fmt.Errorf("yara: malformed rule %q in %q", line, path)
			}
			rule := SubstringRule{Name: parts[0], Pattern: []byte(parts[1]), Score: 100}
			if len(parts) == 3 && parts[2] != "" {
				rule.Tags = strings.Split(parts[2], ",")
			}
			rules = append(rules, rule)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("yara: error reading rule file %q: %w", path, err)
		}
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("yara: no rules added")
	}
	return &SubstringScanner{rules: rules, fastmode: fastmode}, nil
}

// Scan implements RuleScanner.
func (s *SubstringScanner) Scan(ctx context.Context, data []byte) (uint32, ScanResults, error) {
	var certitude uint32
	var results ScanResults
	for _, rule := range s.rules {
		if err := ctx.Err(); err != nil {
			return 0, ScanResults{}, err
		}
		if !bytes.Contains(data, rule.Pattern) {
			continue
		}
		results.Rules = append(results.Rules, rule.Name)
		results.Tags = append(results.Tags, rule.Tags...)
		if rule.Score > certitude {
			certitude = rule.Score
		}
		if s.fastmode {
			break
		}
	}
	return certitude, results, nil
}
