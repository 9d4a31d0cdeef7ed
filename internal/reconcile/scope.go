package reconcile

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Scope restricts a pass to identifiers matching Include and not matching
// Exclude. An empty Include admits every identifier.
type Scope struct {
	Include []string `mapstructure:"include" yaml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

func (s Scope) Validate() error {
	for _, p := range append(append([]string{}, s.Include...), s.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid scope pattern %q", p)
		}
	}
	return nil
}

func (s Scope) Contains(id string) bool {
	for _, p := range s.Exclude {
		if ok, _ := doublestar.Match(p, id); ok {
			return false
		}
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, p := range s.Include {
		if ok, _ := doublestar.Match(p, id); ok {
			return true
		}
	}
	return false
}
