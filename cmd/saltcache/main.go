// saltcache is an operator tool for the salt-extras cache backends: it
// provisions the schema and reads or writes individual cache entries for
// debugging. Connection options come from a YAML file using the same
// names the host passes to the library (host, port, user, password,
// dbname, table_name).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/PaulChristophel/salt-extras/cache"
	"github.com/PaulChristophel/salt-extras/logger"
)

var (
	configFile string
	backend    string
	logLevel   string
)

func loadOptions() (map[string]any, error) {
	opts := map[string]any{}
	if configFile == "" {
		return opts, nil
	}
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(buf, &opts); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configFile, err)
	}
	return opts, nil
}

func logLevelFromFlag() logger.LogLevel {
	switch logLevel {
	case "trace":
		return logger.LevelTrace
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

type pgCacheBackend interface {
	cache.Backend
	InitSchema(ctx context.Context) error
}

func newBackend() (pgCacheBackend, error) {
	opts, err := loadOptions()
	if err != nil {
		return nil, err
	}
	log := cache.WithLogger(logger.NewConsoleLogger(logLevelFromFlag()))
	switch backend {
	case "pgbytea":
		return cache.NewPGBytea(opts, log), nil
	case "pgjsonb":
		return cache.NewPGJSONB(opts, log), nil
	}
	return nil, fmt.Errorf("unknown backend %q (expected pgbytea or pgjsonb)", backend)
}

func printJSON(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}

func main() {
	root := &cobra.Command{
		Use:           "saltcache",
		Short:         "Inspect and manage the salt-extras minion data cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML file with connection options")
	root.PersistentFlags().StringVarP(&backend, "backend", "b", "pgbytea", "cache backend (pgbytea or pgjsonb)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Verify the database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			if err := c.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "init-schema",
		Short: "Create the cache table, indexes, and data_changed trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			return c.InitSchema(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "store <bank> <key> <value>",
		Short: "Store a value (parsed as JSON, or stored as a string)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			var value any
			if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
				value = args[2]
			}
			return c.Store(cmd.Context(), args[0], args[1], value)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "fetch <bank> <key>",
		Short: "Fetch a value and print it as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			v, err := c.Fetch(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(v)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list <bank>",
		Short: "List the keys stored in a bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			keys, err := c.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "contains <bank> <key>",
		Short: "Report whether a bank contains a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			ok, err := c.Contains(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(ok)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "updated <bank> <key>",
		Short: "Print the epoch seconds at which an entry last changed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			epoch, err := c.Updated(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(epoch)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "id <bank> <key>",
		Short: "Print the record identifier of an entry (pgbytea only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			ider, ok := c.(cache.Identified)
			if !ok {
				return fmt.Errorf("backend %s does not assign record identifiers", backend)
			}
			id, err := ider.ID(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "flush <bank> [key]",
		Short: "Remove one entry, or every entry in a bank",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackend()
			if err != nil {
				return err
			}
			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			ok, err := c.Flush(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("flush failed; check the logs")
			}
			return nil
		},
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
