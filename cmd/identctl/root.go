package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/ident/client"
)

// app carries the resolved settings and output streams shared by every
// subcommand.
type app struct {
	configPath string
	url        string
	timeout    string
	retries    int
	output     string
	group      bool

	settings settings
	getenv   func(string) string
	out      io.Writer
}

func execute() int {
	a := &app{getenv: os.Getenv, out: os.Stdout}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "identctl",
		Short:         "Resolve and manage unique user and group principals",
		Long:          "Command-line client for the ident API. Operates on users unless --group is given.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", defaultConfigPath(), "Path to the YAML config file")
	pf.StringVar(&a.url, "url", "", "Server URL (env "+envURL+")")
	pf.StringVar(&a.timeout, "timeout", "", "Request timeout, e.g. 5s (env "+envTimeout+")")
	pf.IntVar(&a.retries, "retries", 3, "Maximum retries for reads")
	pf.StringVarP(&a.output, "output", "o", "", "Output format (text, json)")
	pf.BoolVar(&a.group, "group", false, "Operate on group principals")

	root.SetOut(a.out)
	root.AddCommand(
		a.resolveCmd(),
		a.existsCmd(),
		a.createCmd(),
		a.connectorCmd(),
		a.mappingsCmd(),
		a.updateCmd(),
		a.domainCmd(),
		a.deleteCmd(),
	)
	return root
}

// configure applies flag > env > file > default precedence.
func (a *app) configure(cmd *cobra.Command) error {
	fc, err := loadFileConfig(a.configPath)
	if err != nil {
		return err
	}
	s, err := fc.resolve(a.getenv)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		s.URL = a.url
	}
	if flags.Changed("timeout") {
		d, err := time.ParseDuration(a.timeout)
		if err != nil {
			return fmt.Errorf("--timeout: %w", err)
		}
		s.Timeout = d
	}
	if flags.Changed("retries") {
		s.Retries = a.retries
	}
	if flags.Changed("output") {
		s.Output = a.output
	}
	if s.Output != "text" && s.Output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'text' or 'json'", s.Output)
	}

	a.settings = s
	return nil
}

// kindClient builds a client for the selected principal kind.
func (a *app) kindClient() (*client.KindClient, error) {
	c, err := client.New(a.settings.URL,
		client.WithTimeout(a.settings.Timeout),
		client.WithMaxRetries(a.settings.Retries),
	)
	if err != nil {
		return nil, err
	}
	if a.group {
		return c.Groups(), nil
	}
	return c.Users(), nil
}

// print writes v as indented JSON, or text through the given func.
func (a *app) print(v any, text func(w io.Writer)) error {
	if a.settings.Output == "json" {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}
