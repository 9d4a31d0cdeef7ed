package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/openmined/dirsync/internal/field"
	"github.com/openmined/dirsync/internal/reconcile"
	"github.com/openmined/dirsync/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	FileName        = "config.yaml"
	EnvFileName     = ".env"
	EnvPrefix       = "DIRSYNC"
	DefaultFilter   = "(objectClass=person)"
	DefaultLocal    = "local.db"
	DefaultInterval = 5 * time.Minute
	DefaultHTTPAddr = "localhost:7939"
)

var (
	home, _        = os.UserHomeDir()
	DefaultDataDir = filepath.Join(home, ".dirsync")
)

type Config struct {
	DataDir string `mapstructure:"-" yaml:"-"`
	Path    string `mapstructure:"-" yaml:"-"`

	Directory  DirectoryConfig  `mapstructure:"directory" yaml:"directory"`
	Local      LocalConfig      `mapstructure:"local" yaml:"local"`
	Identifier IdentifierConfig `mapstructure:"identifier" yaml:"identifier"`
	Policy     reconcile.Policy `mapstructure:"policy" yaml:"policy"`
	Scope      reconcile.Scope  `mapstructure:"scope" yaml:"scope,omitempty"`
	Mapping    []FieldMapping   `mapstructure:"mapping" yaml:"mapping"`
	Daemon     DaemonConfig     `mapstructure:"daemon" yaml:"daemon"`
}

type DirectoryConfig struct {
	URL                string `mapstructure:"url" yaml:"url"`
	BindDN             string `mapstructure:"bind_dn" yaml:"bind_dn"`
	Password           string `mapstructure:"password" yaml:"password,omitempty"`
	BaseDN             string `mapstructure:"base_dn" yaml:"base_dn"`
	Filter             string `mapstructure:"filter" yaml:"filter"`
	StartTLS           bool   `mapstructure:"start_tls" yaml:"start_tls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify,omitempty"`
}

type LocalConfig struct {
	// Path of the Local contact store, relative to the data directory unless
	// absolute.
	Path string `mapstructure:"path" yaml:"path"`
}

// IdentifierConfig names the identifier on each side and how new Directory
// entries are named.
type IdentifierConfig struct {
	Directory     string   `mapstructure:"directory" yaml:"directory"`
	Local         string   `mapstructure:"local" yaml:"local"`
	DNLeaf        string   `mapstructure:"dn_leaf" yaml:"dn_leaf"`
	DNLeafCopies  []string `mapstructure:"dn_leaf_copies" yaml:"dn_leaf_copies,omitempty"`
	ObjectClasses []string `mapstructure:"object_classes" yaml:"object_classes"`
}

type DaemonConfig struct {
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	HTTPAddr  string        `mapstructure:"http_addr" yaml:"http_addr"`
	HTTPToken string        `mapstructure:"http_token" yaml:"http_token,omitempty"`
	Watch     bool          `mapstructure:"watch" yaml:"watch"`
}

// Fields returns the mapped Directory attribute names in mapping order.
func (c *Config) Fields() []string {
	out := make([]string, 0, len(c.Mapping))
	for _, m := range c.Mapping {
		out = append(out, m.Directory)
	}
	return out
}

// Shapes maps each mapped field to the form the local store keeps it in.
func (c *Config) Shapes() map[string]field.Shape {
	out := make(map[string]field.Shape, len(c.Mapping))
	for _, m := range c.Mapping {
		out[m.Directory] = m.Local.Shape()
	}
	return out
}

// LocalPath is the absolute path of the Local store.
func (c *Config) LocalPath() string {
	return utils.ResolveIn(c.DataDir, c.Local.Path)
}

func (c *Config) Validate() error {
	var errs []error
	required := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	required("directory.url", c.Directory.URL)
	required("directory.bind_dn", c.Directory.BindDN)
	required("directory.password", c.Directory.Password)
	required("directory.base_dn", c.Directory.BaseDN)
	required("local.path", c.Local.Path)
	required("identifier.directory", c.Identifier.Directory)
	required("identifier.local", c.Identifier.Local)
	required("identifier.dn_leaf", c.Identifier.DNLeaf)

	if c.Directory.URL != "" {
		u, err := url.Parse(c.Directory.URL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("directory.url: %w", err))
		case u.Scheme != "ldap" && u.Scheme != "ldaps":
			errs = append(errs, fmt.Errorf("directory.url: unsupported scheme %q", u.Scheme))
		case u.Scheme == "ldaps" && c.Directory.StartTLS:
			errs = append(errs, errors.New("directory.start_tls cannot be used with ldaps"))
		}
	}

	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	if err := c.Scope.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scope: %w", err))
	}
	if err := validateMapping(c.Mapping); err != nil {
		errs = append(errs, err)
	}
	if c.Daemon.Interval < 0 {
		errs = append(errs, errors.New("daemon.interval must not be negative"))
	}

	return errors.Join(errs...)
}

func validateMapping(mapping []FieldMapping) error {
	if len(mapping) == 0 {
		return errors.New("mapping: at least one field is required")
	}
	var errs []error
	for i, m := range mapping {
		if m.Directory == "" {
			errs = append(errs, fmt.Errorf("mapping[%d]: directory attribute is required", i))
		}
		if m.Local.Name == "" {
			errs = append(errs, fmt.Errorf("mapping[%d]: local name is required", i))
		}
		for _, prev := range mapping[:i] {
			if strings.EqualFold(prev.Directory, m.Directory) {
				errs = append(errs, fmt.Errorf("mapping[%d]: directory attribute %q mapped twice", i, m.Directory))
			}
			if prev.Local.Equal(m.Local) {
				errs = append(errs, fmt.Errorf("mapping[%d]: local field %s mapped twice", i, m.Local))
			}
		}
	}
	return errors.Join(errs...)
}

// Default returns the configuration written by init.
func Default(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		Path:    filepath.Join(dataDir, FileName),
		Directory: DirectoryConfig{
			URL:    "ldap://localhost:389",
			BindDN: "cn=admin,dc=example,dc=com",
			BaseDN: "ou=people,dc=example,dc=com",
			Filter: DefaultFilter,
		},
		Local: LocalConfig{Path: DefaultLocal},
		Identifier: IdentifierConfig{
			Directory:     "uid",
			Local:         "sync_id",
			DNLeaf:        "uid",
			ObjectClasses: []string{"inetOrgPerson"},
		},
		Policy: reconcile.DefaultPolicy(),
		Mapping: []FieldMapping{
			{Directory: "cn", Local: LocalField{Name: "display_name"}},
			{Directory: "sn", Local: LocalField{Name: "family_name"}},
			{Directory: "mail", Local: LocalField{Collection: "emails", Name: "address", Type: "work"}},
			{Directory: "telephoneNumber", Local: LocalField{Collection: "phones", Name: "number", Type: "work"}},
			{Directory: "mobile", Local: LocalField{Collection: "phones", Name: "number", Type: "mobile"}},
		},
		Daemon: DaemonConfig{
			Interval: DefaultInterval,
			HTTPAddr: DefaultHTTPAddr,
			Watch:    true,
		},
	}
}

// Load reads <dataDir>/config.yaml through v, with DIRSYNC_ environment
// overrides and an optional <dataDir>/.env file. A nil v uses a fresh
// instance.
func Load(dataDir string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	envFile := filepath.Join(dataDir, EnvFileName)
	if utils.FileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("env file '%s': %w", envFile, err)
		}
	}

	path := filepath.Join(dataDir, FileName)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config read '%s': %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode '%s': %w", path, err)
	}
	cfg.DataDir = dataDir
	cfg.Path = path

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	p := reconcile.DefaultPolicy()
	v.SetDefault("directory.url", "")
	v.SetDefault("directory.bind_dn", "")
	v.SetDefault("directory.password", "")
	v.SetDefault("directory.base_dn", "")
	v.SetDefault("directory.filter", DefaultFilter)
	v.SetDefault("directory.start_tls", false)
	v.SetDefault("directory.insecure_skip_verify", false)
	v.SetDefault("local.path", DefaultLocal)
	v.SetDefault("identifier.directory", "")
	v.SetDefault("identifier.local", "")
	v.SetDefault("identifier.dn_leaf", "")
	v.SetDefault("identifier.object_classes", []string{"person"})
	v.SetDefault("policy.delete_on_directory", p.DeleteOnDirectory)
	v.SetDefault("policy.delete_on_local", p.DeleteOnLocal)
	v.SetDefault("policy.create_on_directory", p.CreateOnDirectory)
	v.SetDefault("policy.create_on_local", p.CreateOnLocal)
	v.SetDefault("policy.change_on_directory", p.ChangeOnDirectory)
	v.SetDefault("policy.change_on_local", p.ChangeOnLocal)
	v.SetDefault("policy.directory_always_wins", false)
	v.SetDefault("policy.local_always_wins", false)
	v.SetDefault("policy.all_changes_from_directory", false)
	v.SetDefault("policy.all_changes_from_local", false)
	v.SetDefault("daemon.interval", DefaultInterval)
	v.SetDefault("daemon.http_addr", DefaultHTTPAddr)
	v.SetDefault("daemon.http_token", "")
	v.SetDefault("daemon.watch", true)
}

// Save writes the config as YAML. The file holds the bind password and is
// only readable by the owner.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Redacted returns a copy safe to print or serve.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Directory.Password = utils.MaskSecret(c.Directory.Password)
	cp.Daemon.HTTPToken = utils.MaskSecret(c.Daemon.HTTPToken)
	cp.Mapping = slices.Clone(c.Mapping)
	return &cp
}
