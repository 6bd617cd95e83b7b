// Package autoreply matches inbound text against a configured keyword table
// and produces canned replies. Matching is case-insensitive substring search,
// applied before the message is relayed to staff.
package autoreply

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Keyword string
	Reply   string
}

type Table struct {
	rules []Rule
}

// New builds a table from keyword→reply pairs. Rules are ordered by keyword
// so matches fire deterministically.
func New(pairs map[string]string) *Table {
	rules := make([]Rule, 0, len(pairs))
	for k, v := range pairs {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		rules = append(rules, Rule{Keyword: k, Reply: v})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Keyword < rules[j].Keyword })
	return &Table{rules: rules}
}

// LoadFile reads a YAML mapping of keyword to reply.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read auto replies: %w", err)
	}
	var pairs map[string]string
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode auto replies %s: %w", path, err)
	}
	return New(pairs), nil
}

// Match returns the replies for every keyword contained in text.
func (t *Table) Match(text string) []string {
	if t == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var replies []string
	for _, r := range t.rules {
		if strings.Contains(lower, strings.ToLower(r.Keyword)) {
			replies = append(replies, r.Reply)
		}
	}
	return replies
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}
