package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/fanfetch/internal/logger"
	"github.com/glorpus-work/fanfetch/pkg/config"
	"github.com/glorpus-work/fanfetch/pkg/errors"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View and modify fanfetch configuration settings",
	}

	var asYAML, force bool

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runConfigShow(asYAML)
		},
	}
	show.Flags().BoolVar(&asYAML, "yaml", false, "print the configuration as YAML")

	set := &cobra.Command{
		Use:   "set KEY VALUE [KEY VALUE]...",
		Short: "Set configuration values",
		Long:  "Set one or more configuration keys. The file is only written if the result is valid.",
		// Values such as -1 must not be taken for flags.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			args, err := parseKnownFlags(cmd, args)
			if err != nil {
				return err
			}
			if help, _ := cmd.Flags().GetBool("help"); help {
				return cmd.Help()
			}
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected KEY VALUE pairs, got %d arguments", len(args))
			}
			return runConfigSet(args)
		},
	}

	get := &cobra.Command{
		Use:   "get KEY...",
		Short: "Get configuration values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConfigGet(args)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  "Create a configuration file holding the defaults",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runConfigInit(force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")

	cmd.AddCommand(show, set, get, initCmd)
	return cmd
}

func runConfigShow(asYAML bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if asYAML {
		data, err := cfg.ToYAML()
		if err != nil {
			return err
		}
		_, err = stdout().Write(data)
		return err
	}

	tw := tabwriter.NewWriter(stdout(), 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SETTING\tVALUE")
	values := cfg.ToMap()
	for _, key := range cfg.Keys() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", key, values[key])
	}
	_ = tw.Flush()

	authMap := cfg.ToAuthMap()
	_, _ = fmt.Fprintf(stdout(), "\nHosts (%d):\n", len(cfg.Hosts))
	for _, host := range cfg.Hosts {
		kind := "none"
		if a, ok := authMap[host.Host]; ok {
			kind = string(a.Type())
		}
		_, _ = fmt.Fprintf(stdout(), "  %s: %s\n", host.Host, kind)
	}

	if len(cfg.Hooks) > 0 {
		events := make([]string, 0, len(cfg.Hooks))
		for event := range cfg.Hooks {
			events = append(events, event)
		}
		sort.Strings(events)
		_, _ = fmt.Fprintf(stdout(), "\nHooks (%d):\n", len(cfg.Hooks))
		for _, event := range events {
			_, _ = fmt.Fprintf(stdout(), "  %s: %s\n", event, cfg.Hooks[event])
		}
	}
	return nil
}

func runConfigSet(pairs []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	changed := make(logger.Fields, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, value := pairs[i], pairs[i+1]
		if err := cfg.SetValue(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
		changed[key] = value
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.SaveConfig(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	logger.Success("Configuration updated", changed)
	return nil
}

func runConfigGet(keys []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value, err := cfg.GetValue(key)
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", key, err)
		}
		if len(keys) > 1 {
			value = key + "=" + value
		}
		lines = append(lines, value)
	}
	_, _ = fmt.Fprintln(stdout(), strings.Join(lines, "\n"))
	return nil
}

func runConfigInit(force bool) error {
	path := getConfigPath()

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s (use --force to overwrite): %w", path, errors.ErrFileExists)
	}
	if err := config.DefaultConfig().SaveConfig(path); err != nil {
		return fmt.Errorf("failed to save default configuration: %w", err)
	}

	logger.Success("Configuration file created", logger.Fields{"path": path})
	return nil
}

// parseKnownFlags sets the flags of cmd that appear in args and returns the
// remaining arguments. Tokens that name no flag of cmd, like negative numbers,
// stay positional. Everything after "--" is positional.
func parseKnownFlags(cmd *cobra.Command, args []string) ([]string, error) {
	fs := cmd.Flags()
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			rest = append(rest, args[i+1:]...)
			break
		}

		var name, value string
		hasValue := false
		switch {
		case strings.HasPrefix(arg, "--"):
			name, value, hasValue = strings.Cut(arg[2:], "=")
		case len(arg) == 2 && arg[0] == '-':
			if f := fs.ShorthandLookup(arg[1:]); f != nil {
				name = f.Name
			}
		}
		f := fs.Lookup(name)
		if name == "" || f == nil {
			rest = append(rest, arg)
			continue
		}
		if !hasValue {
			if f.NoOptDefVal != "" {
				value = f.NoOptDefVal
			} else {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("flag needs an argument: %s", arg)
				}
				i++
				value = args[i]
			}
		}
		if err := fs.Set(f.Name, value); err != nil {
			return nil, fmt.Errorf("invalid argument %q for %s: %w", value, arg, err)
		}
	}
	return rest, nil
}
