package reconcile

import (
	"errors"
	"fmt"
)

// SideKind names one of the two stores.
type SideKind int

const (
	Directory SideKind = iota
	Local
)

func (k SideKind) String() string {
	switch k {
	case Directory:
		return "Directory"
	case Local:
		return "Local"
	default:
		return fmt.Sprintf("SideKind(%d)", int(k))
	}
}

// Other returns the opposite side.
func (k SideKind) Other() SideKind {
	if k == Directory {
		return Local
	}
	return Directory
}

// Policy is the set of switches that license mutations. It is loaded once
// per pass and never changed while the pass runs.
type Policy struct {
	DeleteOnDirectory bool `mapstructure:"delete_on_directory" yaml:"delete_on_directory" json:"delete_on_directory"`
	DeleteOnLocal     bool `mapstructure:"delete_on_local" yaml:"delete_on_local" json:"delete_on_local"`
	CreateOnDirectory bool `mapstructure:"create_on_directory" yaml:"create_on_directory" json:"create_on_directory"`
	CreateOnLocal     bool `mapstructure:"create_on_local" yaml:"create_on_local" json:"create_on_local"`
	ChangeOnDirectory bool `mapstructure:"change_on_directory" yaml:"change_on_directory" json:"change_on_directory"`
	ChangeOnLocal     bool `mapstructure:"change_on_local" yaml:"change_on_local" json:"change_on_local"`

	DirectoryAlwaysWins bool `mapstructure:"directory_always_wins" yaml:"directory_always_wins" json:"directory_always_wins"`
	LocalAlwaysWins     bool `mapstructure:"local_always_wins" yaml:"local_always_wins" json:"local_always_wins"`

	AllChangesFromDirectory bool `mapstructure:"all_changes_from_directory" yaml:"all_changes_from_directory" json:"all_changes_from_directory"`
	AllChangesFromLocal     bool `mapstructure:"all_changes_from_local" yaml:"all_changes_from_local" json:"all_changes_from_local"`
}

// DefaultPolicy allows every create, delete and change and sets no override.
func DefaultPolicy() Policy {
	return Policy{
		DeleteOnDirectory: true,
		DeleteOnLocal:     true,
		CreateOnDirectory: true,
		CreateOnLocal:     true,
		ChangeOnDirectory: true,
		ChangeOnLocal:     true,
	}
}

var (
	errBothAlwaysWin      = errors.New("directory_always_wins and local_always_wins are mutually exclusive")
	errBothAllChangesFrom = errors.New("all_changes_from_directory and all_changes_from_local are mutually exclusive")
)

// Validate rejects contradictory overrides.
func (p Policy) Validate() error {
	var errs []error
	if p.DirectoryAlwaysWins && p.LocalAlwaysWins {
		errs = append(errs, errBothAlwaysWin)
	}
	if p.AllChangesFromDirectory && p.AllChangesFromLocal {
		errs = append(errs, errBothAllChangesFrom)
	}
	return errors.Join(errs...)
}

func (p Policy) deleteOn(k SideKind) bool {
	if k == Directory {
		return p.DeleteOnDirectory
	}
	return p.DeleteOnLocal
}

func (p Policy) createOn(k SideKind) bool {
	if k == Directory {
		return p.CreateOnDirectory
	}
	return p.CreateOnLocal
}

func (p Policy) changeOn(k SideKind) bool {
	if k == Directory {
		return p.ChangeOnDirectory
	}
	return p.ChangeOnLocal
}

func (p Policy) alwaysWins(k SideKind) bool {
	if k == Directory {
		return p.DirectoryAlwaysWins
	}
	return p.LocalAlwaysWins
}

func (p Policy) allChangesFrom(k SideKind) bool {
	if k == Directory {
		return p.AllChangesFromDirectory
	}
	return p.AllChangesFromLocal
}
