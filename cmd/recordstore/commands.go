package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"recordstore/internal/config"
	"recordstore/logging"
	"recordstore/recordstore"
)

// CLI flags shared by every command
type cliFlags struct {
	configPath string
	uri        string
	collection string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:          "recordstore",
		Short:        "Keyed numeric record store",
		Long:         `recordstore keeps numeric records keyed by a unique string ID in MongoDB or an embedded bolt file.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", defaultConfigPath(), "Path to the YAML configuration file")
	pf.StringVarP(&flags.uri, "uri", "u", "", "Store URI (mongodb://, mongodb+srv:// or bolt://<path>); overrides config and STORE_URI")
	pf.StringVar(&flags.collection, "collection", "", "Collection holding the records")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newGetCmd(flags),
		newPutCmd(flags),
		newUpdateCmd(flags),
		newDeleteCmd(flags),
		newListCmd(flags),
		newPurgeCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "recordstore %s (commit: %s)\n", version, commit)
			},
		},
	)
	return rootCmd
}

// load reads the config file, then applies command-line overrides.
func (f *cliFlags) load() *config.RawConfig {
	cfg := config.LoadConfigWithDefaults(f.configPath)
	if f.uri != "" {
		cfg.Store.URI = f.uri
	}
	if f.collection != "" {
		cfg.Store.Collection = f.collection
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	return cfg
}

func (f *cliFlags) setup() (*config.RawConfig, logging.Logger, error) {
	cfg := f.load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withStore connects for the duration of fn and always disconnects afterwards.
func (f *cliFlags) withStore(ctx context.Context, fn func(*recordstore.Store) error) error {
	cfg, logger, err := f.setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	mgr, err := recordstore.NewManager(cfg.Store.URI, cfg.Store.ToOptions(), logger.WithField("component", "cli"))
	if err != nil {
		return err
	}
	if err := mgr.Connect(ctx); err != nil {
		return err
	}
	defer mgr.Close(context.WithoutCancel(ctx))

	return fn(mgr.Store())
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func parseData(arg string) (float64, error) {
	data, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("data %q is not a number", arg)
	}
	return data, nil
}

func newServeCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the record API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer logger.Close()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func newGetCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print the record with the given ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withStore(cmd.Context(), func(s *recordstore.Store) error {
				rec, err := s.Read(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("record %q not found", args[0])
				}
				return printJSON(cmd, rec)
			})
		},
	}
}

func newPutCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "put ID DATA",
		Short: "Write a record, updating it if the ID already exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(args[1])
			if err != nil {
				return err
			}
			return flags.withStore(cmd.Context(), func(s *recordstore.Store) error {
				rec, err := s.Write(cmd.Context(), args[0], data)
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			})
		},
	}
}

func newUpdateCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update ID DATA",
		Short: "Set data on an existing record; a missing ID is left alone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(args[1])
			if err != nil {
				return err
			}
			return flags.withStore(cmd.Context(), func(s *recordstore.Store) error {
				return s.Update(cmd.Context(), args[0], data)
			})
		},
	}
}

func newDeleteCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete the record with the given ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withStore(cmd.Context(), func(s *recordstore.Store) error {
				return s.Delete(cmd.Context(), args[0])
			})
		},
	}
}

func newListCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withStore(cmd.Context(), func(s *recordstore.Store) error {
				recs, err := s.ReadAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, recs)
			})
		},
	}
}

func newPurgeCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withStore(cmd.Context(), func(s *recordstore.Store) error {
				summary, err := s.DeleteAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
}
