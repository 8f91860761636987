package admin

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"survey-backend/internal/metadata"
)

// RulesDocument is the YAML layout of an edit rule set.
type RulesDocument struct {
	Survey string              `yaml:"survey,omitempty"`
	Rules  []metadata.EditRule `yaml:"rules"`
}

func EncodeRules(surveyCode string, rules []metadata.EditRule) ([]byte, error) {
	if rules == nil {
		rules = []metadata.EditRule{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(RulesDocument{Survey: surveyCode, Rules: rules}); err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRules reads a rule set. A bare YAML list of rules is accepted too.
func DecodeRules(data []byte) ([]metadata.EditRule, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(node.Content) == 0 {
		return []metadata.EditRule{}, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var rules []metadata.EditRule
		if err := root.Decode(&rules); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
		return rules, nil
	}

	var doc RulesDocument
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if doc.Rules == nil {
		doc.Rules = []metadata.EditRule{}
	}
	return doc.Rules, nil
}
