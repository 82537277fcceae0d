package main

import (
	"path/filepath"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
)

const usage = `boxcat: a terminal IRC client.

Usage:
  boxcat [--config=<file>] [--nick=<nick>] [--lenient] [<password> [<host> [<port>]]]
  boxcat -h | --help

Options:
  --config=<file>  Configuration file. key = value, .toml, or .yaml.
  --nick=<nick>    Register with this nickname.
  --lenient        Accept lines ending in a bare LF.
  -h --help        Show this screen.
`

// errHelp means the user asked for the usage text.
var errHelp = errors.New("help requested")

// Args are command line arguments. Blank means not given.
type Args struct {
	ConfigFile string
	Nick       string
	Lenient    bool
	Password   string
	Host       string
	Port       string
}

func getArgs(argv []string) (Args, error) {
	// docopt reads os.Args when given nil.
	if argv == nil {
		argv = []string{}
	}

	help := false
	parser := &docopt.Parser{
		HelpHandler: func(err error, _ string) {
			if err == nil {
				help = true
			}
		},
	}

	opts, err := parser.ParseArgs(usage, argv, "")
	if err != nil {
		return Args{}, errors.Wrap(err, "invalid arguments")
	}

	if help {
		return Args{}, errHelp
	}

	args := Args{
		Nick:     optString(opts, "--nick"),
		Password: optString(opts, "<password>"),
		Host:     optString(opts, "<host>"),
		Port:     optString(opts, "<port>"),
	}

	args.Lenient, _ = opts["--lenient"].(bool)

	if configFile := optString(opts, "--config"); configFile != "" {
		configPath, err := filepath.Abs(configFile)
		if err != nil {
			return Args{}, errors.Wrapf(err,
				"unable to determine absolute path to config file: %s", configFile)
		}
		args.ConfigFile = configPath
	}

	return args, nil
}

// Options not given are nil.
func optString(opts docopt.Opts, key string) string {
	s, _ := opts[key].(string)
	return s
}
