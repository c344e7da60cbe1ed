// Package config loads the supervisor configuration.
//
// Values come from, in increasing precedence: Defaults, an optional config file,
// and MSW_-prefixed environment variables (web.addr is MSW_WEB_ADDR).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/guseggert/wrapperconsole/internal/files"
	"github.com/guseggert/wrapperconsole/internal/logging"
	"github.com/spf13/viper"
)

const EnvPrefix = "MSW"

type Supervisor struct {
	Process Process        `mapstructure:"process"`
	Web     Web            `mapstructure:"web"`
	Log     logging.Config `mapstructure:"log"`
}

// Process describes the supervised child.
type Process struct {
	Command    string   `mapstructure:"command"`
	Args       []string `mapstructure:"args"`
	WorkingDir string   `mapstructure:"workingdir"`
	Env        []string `mapstructure:"env"`
	// StopCommand is written to stdin to ask the child to stop. SIGINT is sent when empty.
	StopCommand string `mapstructure:"stopcommand"`
	// OnlinePattern marks the child online when a stdout line matches. The child is online as soon as it starts when empty.
	OnlinePattern string `mapstructure:"onlinepattern"`
	// StoppingPattern marks the child stopping when a stdout line matches.
	StoppingPattern string        `mapstructure:"stoppingpattern"`
	StopTimeout     time.Duration `mapstructure:"stoptimeout"`
	Autostart       bool          `mapstructure:"autostart"`
	// OutputLog receives a rotated copy of the child's output when set.
	OutputLog string `mapstructure:"outputlog"`
}

type Web struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
	// History is the number of recent log events replayed to new clients.
	History int `mapstructure:"history"`
	// ClientQueue is the per-client event queue size. Clients that fill it are dropped.
	ClientQueue int `mapstructure:"clientqueue"`
}

// Defaults registers default values on v. Every key must have a default for env overrides to apply.
func Defaults(v *viper.Viper) {
	v.SetDefault("process.command", "")
	v.SetDefault("process.args", []string{})
	v.SetDefault("process.workingdir", "")
	v.SetDefault("process.env", []string{})
	v.SetDefault("process.stopcommand", "")
	v.SetDefault("process.onlinepattern", "")
	v.SetDefault("process.stoppingpattern", "")
	v.SetDefault("process.stoptimeout", 30*time.Second)
	v.SetDefault("process.autostart", true)
	v.SetDefault("process.outputlog", "")

	v.SetDefault("web.addr", ":8080")
	v.SetDefault("web.prefix", "")
	v.SetDefault("web.history", 200)
	v.SetDefault("web.clientqueue", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxsize", logging.DefaultMaxSizeMB)
	v.SetDefault("log.maxbackups", logging.DefaultMaxBackups)
	v.SetDefault("log.maxage", logging.DefaultMaxAgeDays)
	v.SetDefault("log.compress", true)
}

// Locate finds config.yml or config.yaml in dir or the nearest parent that has one.
// It returns "" when there is none.
func Locate(dir string) (string, error) {
	return files.FindUp(dir, "config.yml", "config.yaml")
}

// Load reads the configuration. path may be empty, in which case only defaults and env apply.
func Load(path string) (*Supervisor, error) {
	v := viper.New()
	Defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %q: %w", path, err)
		}
	}

	var c Supervisor
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Supervisor) Validate() error {
	if c.Process.Command == "" {
		return fmt.Errorf("process.command is required")
	}
	if c.Process.StopTimeout <= 0 {
		return fmt.Errorf("process.stoptimeout must be positive, got %s", c.Process.StopTimeout)
	}
	if c.Web.Prefix != "" && (!strings.HasPrefix(c.Web.Prefix, "/") || strings.HasSuffix(c.Web.Prefix, "/")) {
		return fmt.Errorf("web.prefix %q must start with / and not end with /", c.Web.Prefix)
	}
	return nil
}
