package model

import (
	"fmt"
	"strings"
)

// SearchConfig describes one external search query. Values are treated as
// immutable once built; pipelines copy rather than modify them.
type SearchConfig struct {
	Keywords        string `json:"keywords,omitempty" yaml:"keywords" mapstructure:"keywords" validate:"required_without=Title"`
	Industry        string `json:"industry,omitempty" yaml:"industry" mapstructure:"industry"`
	Title           string `json:"title,omitempty" yaml:"title" mapstructure:"title" validate:"required_without=Keywords"`
	Organization    string `json:"organization,omitempty" yaml:"organization" mapstructure:"organization"`
	Location        string `json:"location,omitempty" yaml:"location" mapstructure:"location"`
	ConnectionLevel string `json:"connection_level,omitempty" yaml:"connection_level" mapstructure:"connection_level" validate:"omitempty,oneof=1st 2nd 3rd"`
	MaxResults      int    `json:"max_results" yaml:"max_results" mapstructure:"max_results" validate:"gte=1,lte=100"`
}

// Label returns a short human-readable description for logs.
func (c SearchConfig) Label() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{c.Keywords, c.Title, c.Organization, c.Location} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("empty(max=%d)", c.MaxResults)
	}
	return strings.Join(parts, " | ")
}

// SearchGroup is an outer grouping of configs used by the weekly sweep,
// typically one group per target organization.
type SearchGroup struct {
	Name    string         `json:"name" yaml:"name"`
	Configs []SearchConfig `json:"configs" yaml:"configs"`
}
