package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/horgh/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"github.com/horgh/boxcat/internal/framer"
	"github.com/horgh/boxcat/internal/session"
)

// Config holds the client's configuration.
type Config struct {
	Host     string
	Port     string
	Password string

	// Nick, if set, is registered right after PASS.
	Nick string

	// Where plain text goes.
	DefaultTarget string

	// Accept a bare LF as a line terminator.
	Lenient bool

	MaxLineLength   int
	OversizedPolicy framer.OversizedPolicy

	// Stay Registered until RPL_WELCOME rather than the first reply.
	RequireWelcome bool

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// auto, always, or never.
	Color string
}

func defaultConfig() Config {
	return Config{
		Host:          "localhost",
		Port:          "6667",
		DefaultTarget: session.DefaultTarget,
		MaxLineLength: 8192,
		DialTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		Color:         "auto",
	}
}

// loadConfig builds the configuration from defaults, then the config file if
// there is one, then the command line.
func loadConfig(args Args) (Config, error) {
	c := defaultConfig()

	if args.ConfigFile != "" {
		configMap, err := readConfigMap(args.ConfigFile)
		if err != nil {
			return Config{}, err
		}

		if err := c.apply(configMap); err != nil {
			return Config{}, errors.Wrapf(err, "configuration problem: %s",
				args.ConfigFile)
		}
	}

	if args.Password != "" {
		c.Password = args.Password
	}
	if args.Host != "" {
		c.Host = args.Host
	}
	if args.Port != "" {
		c.Port = args.Port
	}
	if args.Nick != "" {
		c.Nick = args.Nick
	}
	if args.Lenient {
		c.Lenient = true
	}

	if err := c.check(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// readConfigMap reads a config file into keys and values. The extension picks
// the format. Anything other than TOML or YAML is key = value.
func readConfigMap(file string) (map[string]string, error) {
	var raw map[string]interface{}

	switch strings.ToLower(filepath.Ext(file)) {
	case ".toml":
		if _, err := toml.DecodeFile(file, &raw); err != nil {
			return nil, errors.Wrap(err, "unable to read TOML config")
		}
	case ".yaml", ".yml":
		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read config")
		}
		if err := yaml.Unmarshal(buf, &raw); err != nil {
			return nil, errors.Wrap(err, "unable to read YAML config")
		}
	default:
		configMap, err := config.ReadStringMap(file)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read config")
		}
		return configMap, nil
	}

	configMap := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			configMap[strings.ToLower(k)] = v
		case bool, int, int64, float64:
			configMap[strings.ToLower(k)] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("unsupported value for key: %s", k)
		}
	}

	return configMap, nil
}

// apply sets the keys present in the map.
func (c *Config) apply(configMap map[string]string) error {
	keys := make([]string, 0, len(configMap))
	for k := range configMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := strings.TrimSpace(configMap[key])

		var err error
		switch key {
		case "host":
			c.Host = v
		case "port":
			c.Port = v
		case "password":
			c.Password = v
		case "nick":
			c.Nick = v
		case "default-target":
			c.DefaultTarget = v
		case "lenient":
			c.Lenient, err = strconv.ParseBool(v)
		case "max-line-length":
			c.MaxLineLength, err = strconv.Atoi(v)
		case "oversized-policy":
			c.OversizedPolicy, err = parseOversizedPolicy(v)
		case "require-welcome":
			c.RequireWelcome, err = strconv.ParseBool(v)
		case "dial-timeout":
			c.DialTimeout, err = time.ParseDuration(v)
		case "write-timeout":
			c.WriteTimeout, err = time.ParseDuration(v)
		case "color":
			c.Color = strings.ToLower(v)
		default:
			return fmt.Errorf("unknown key: %s", key)
		}

		if err != nil {
			return errors.Wrapf(err, "invalid value for %s", key)
		}
	}

	return nil
}

func parseOversizedPolicy(s string) (framer.OversizedPolicy, error) {
	switch strings.ToLower(s) {
	case "discard":
		return framer.OversizedDiscard, nil
	case "fail":
		return framer.OversizedFail, nil
	default:
		return 0, fmt.Errorf("unknown policy: %s", s)
	}
}

func (c Config) check() error {
	if c.Password == "" {
		return fmt.Errorf("you must provide a password")
	}

	if c.Host == "" {
		return fmt.Errorf("host may not be blank")
	}

	port, err := strconv.ParseUint(c.Port, 10, 16)
	if err != nil || port == 0 {
		return fmt.Errorf("port is not valid: %s", c.Port)
	}

	if c.Nick != "" && !isValidNick(c.Nick) {
		return fmt.Errorf("nick is not valid: %s", c.Nick)
	}

	if !isValidTarget(c.DefaultTarget) {
		return fmt.Errorf("default target is not valid: %s", c.DefaultTarget)
	}

	if c.MaxLineLength < 0 {
		return fmt.Errorf("max line length may not be negative")
	}

	if c.DialTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("color must be auto, always, or never: %s", c.Color)
	}

	return nil
}

func (c Config) sessionConfig(log zerolog.Logger) session.Config {
	activation := session.ActivateOnFirstReply
	if c.RequireWelcome {
		activation = session.ActivateOnWelcome
	}

	return session.Config{
		MachineConfig: session.MachineConfig{
			Password:      c.Password,
			Nick:          c.Nick,
			DefaultTarget: c.DefaultTarget,
			Activation:    activation,
		},
		Framer: framer.Config{
			Lenient:         c.Lenient,
			MaxLineLength:   c.MaxLineLength,
			OversizedPolicy: c.OversizedPolicy,
		},
		Logger: log,
	}
}
