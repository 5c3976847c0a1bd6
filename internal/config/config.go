package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

const (
	// CLIName names the config directory and the environment prefix.
	CLIName = "jobshell"

	defaultConfigFileName = "config.yaml"

	InteractiveKey  = "interactive"
	PromptKey       = "prompt"
	LogLevelKey     = "log-level"
	LogFileKey      = "log-file"
	StatusSocketKey = "status-socket"
	TranscriptKey   = "pty.transcript"
)

// Interactive modes accepted by the "interactive" key.
const (
	InteractiveAuto  = "auto"
	InteractiveTrue  = "true"
	InteractiveFalse = "false"
)

// Config is the resolved shell configuration.
type Config struct {
	Interactive  string
	Prompt       string
	LogLevel     string
	LogFile      string
	StatusSocket string
	Transcript   string

	// Path is the config file the values were read from, if any.
	Path string
}

// GetDefaultConfigPath returns the expanded default config directory.
// If XDG_CONFIG_HOME is set the default is $XDG_CONFIG_HOME/jobshell,
// otherwise os.UserHomeDir()/.config/jobshell.
func GetDefaultConfigPath() (string, error) {
	val, set := os.LookupEnv("XDG_CONFIG_HOME")
	if !set || val == "" {
		var err error
		val, err = os.UserHomeDir()
		if err != nil {
			return "", err
		}
		val = filepath.Join(val, ".config")
	}
	val = filepath.Join(val, CLIName)
	return os.ExpandEnv(val), nil
}

// GetDefaultConfigFilePath returns the default config file location.
func GetDefaultConfigFilePath() (string, error) {
	path, err := GetDefaultConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(path, defaultConfigFileName), nil
}

// NewViper returns a viper instance reading path (when it exists) and the
// JOBSHELL_ environment, with defaults for every key.
func NewViper(path string) (*v.Viper, error) {
	rv := v.New()
	rv.SetEnvPrefix(CLIName)
	rv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	rv.AutomaticEnv()

	rv.SetDefault(InteractiveKey, InteractiveAuto)
	rv.SetDefault(PromptKey, "")
	rv.SetDefault(LogLevelKey, "error")
	rv.SetDefault(LogFileKey, "")
	rv.SetDefault(StatusSocketKey, "")
	rv.SetDefault(TranscriptKey, "")

	path = os.ExpandEnv(path)
	if path == "" {
		return rv, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return rv, nil
		}
		return nil, err
	}
	rv.SetConfigFile(path)
	if err := rv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return rv, nil
}

// BindFlags binds every flag in fs whose name is a config key.
func BindFlags(rv *v.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case InteractiveKey, PromptKey, LogLevelKey, LogFileKey, StatusSocketKey:
			err = rv.BindPFlag(f.Name, f)
		case "transcript":
			err = rv.BindPFlag(TranscriptKey, f)
		}
	})
	return err
}

// Load resolves a Config from rv and validates it.
func Load(rv *v.Viper) (Config, error) {
	c := Config{
		Interactive:  strings.ToLower(strings.TrimSpace(rv.GetString(InteractiveKey))),
		Prompt:       rv.GetString(PromptKey),
		LogLevel:     rv.GetString(LogLevelKey),
		LogFile:      os.ExpandEnv(rv.GetString(LogFileKey)),
		StatusSocket: os.ExpandEnv(rv.GetString(StatusSocketKey)),
		Transcript:   os.ExpandEnv(rv.GetString(TranscriptKey)),
		Path:         rv.ConfigFileUsed(),
	}

	switch c.Interactive {
	case InteractiveAuto, InteractiveTrue, InteractiveFalse:
	case "":
		c.Interactive = InteractiveAuto
	default:
		return Config{}, fmt.Errorf("invalid %s value %q: want auto, true or false", InteractiveKey, c.Interactive)
	}
	return c, nil
}

// InteractiveMode reports whether job control should be enabled given
// whether stdin is a terminal. Forcing true without a terminal is honoured
// only for process groups; terminal handoff still requires a terminal.
func (c Config) InteractiveMode(isTerminal bool) bool {
	switch c.Interactive {
	case InteractiveTrue:
		return true
	case InteractiveFalse:
		return false
	default:
		return isTerminal
	}
}
