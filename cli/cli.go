// Package cli parses the command line of the scan daemon.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// Options are the parsed command-line flags.
type Options struct {
	// EnvFile is preloaded into the environment before settings are read.
	EnvFile string
	// ConfigFile overrides SCAN_CONFIG_FILE when set.
	ConfigFile string
	// ConfigTest parses the configuration, reports problems and exits.
	ConfigTest bool
	// LogLevel overrides SCAN_LOG_LEVEL when set.
	LogLevel string
}

// ErrHelp is returned when -h or -help was given; usage has been printed.
var ErrHelp = flag.ErrHelp

// Parse parses args (without the program name). Usage and errors are
// written to output.
func Parse(args []string, output io.Writer) (Options, error) {
	var opts Options
	fs := flag.NewFlagSet("hostscan", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.EnvFile, "env", ".env", "Environment file to preload (ignored if missing)")
	fs.StringVar(&opts.ConfigFile, "config", "", "Server configuration file holding set::scan::endpoint")
	fs.BoolVar(&opts.ConfigTest, "configtest", false, "Check the configuration file and exit")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage: hostscan [-env file] [-config file] [-configtest] [-log-level level]")
		fmt.Fprintln(output, "Example: hostscan -config /etc/ircd/unrealircd.conf")
		fmt.Fprintln(output, "Example: hostscan -configtest -config ./unrealircd.conf")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected arguments: %v", fs.Args())
		fmt.Fprintln(output, "Error:", err)
		fs.Usage()
		return Options{}, err
	}
	return opts, nil
}

// IsHelp reports whether err is the result of -h.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
