package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/configkv/internal/config"
	"github.com/kalambet/configkv/internal/configstore"
	"github.com/kalambet/configkv/internal/remote"
	"github.com/kalambet/configkv/internal/storage"
)

// --- set ---

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value> [<key> <value>...]",
		Short: "Set one or more values",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected key/value pairs, got %d argument(s)", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(h *storeHandle) error {
				pairs := make(map[string]string, len(args)/2)
				order := make([]string, 0, len(args)/2)
				for i := 0; i < len(args); i += 2 {
					if _, seen := pairs[args[i]]; !seen {
						order = append(order, args[i])
					}
					pairs[args[i]] = args[i+1]
				}

				if err := setPairs(cmd.Context(), h, order, pairs); err != nil {
					return err
				}
				for _, k := range order {
					printSuccess("Set %s = %s", k, pairs[k])
				}
				return nil
			})
		},
	}
}

// setPairs writes pairs through the store. Several pairs bound for a remote
// server are sent in parallel first; if that fails they go through the
// store one by one, which falls back to the local backend.
func setPairs(ctx context.Context, h *storeHandle, order []string, pairs map[string]string) error {
	if h.Remote != nil && len(pairs) > 1 {
		if ctx == nil {
			ctx = context.Background()
		}
		err := h.Remote.SetMany(ctx, pairs)
		if err == nil {
			return nil
		}
		slog.Warn("bulk remote set failed, writing keys individually", "error", err)
	}
	for _, k := range order {
		if err := h.Store.Set(k, pairs[k]); err != nil {
			return fmt.Errorf("setting %q: %w", k, err)
		}
	}
	return nil
}

// --- get ---

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value",
		Long: `Print the value stored under key.

Without --default a missing key is an error. With --default the default is
printed instead, even when it is the empty string.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			hasDefault := cmd.Flags().Changed("default")
			def, _ := cmd.Flags().GetString("default")

			return withStore(func(h *storeHandle) error {
				var (
					v   string
					err error
				)
				if hasDefault {
					v, err = h.Store.GetOr(key, def)
				} else {
					var ok bool
					v, ok, err = h.Store.Get(key)
					if err == nil && !ok {
						return fmt.Errorf("key %q: %w", key, errNotFound)
					}
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
	cmd.Flags().String("default", "", "value to print when the key is not set")
	return cmd
}

// --- has ---

func newHasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "has <key>",
		Short: "Report whether a key is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(h *storeHandle) error {
				ok, err := h.Store.Has(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

// --- rm ---

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <key>",
		Aliases: []string{"delete"},
		Short:   "Remove a key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return withStore(func(h *storeHandle) error {
				removed, err := h.Store.Remove(key)
				if errors.Is(err, configstore.ErrUnsupported) {
					return fmt.Errorf("backend %s cannot remove keys", configstore.BackendName(h.Store.Backend()))
				}
				if err != nil {
					return err
				}
				if !removed {
					printWarning("%s was not set", key)
					return nil
				}
				printSuccess("Removed %s", key)
				return nil
			})
		},
	}
}

// --- all ---

func newAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Print every key and value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			return withStore(func(h *storeHandle) error {
				all, err := h.Store.All()
				if err != nil {
					return err
				}
				return writeEntries(cmd.OutOrStdout(), all, format)
			})
		},
	}
	cmd.Flags().StringP("format", "f", "text", "output format: text, json, yaml or toml")
	return cmd
}

func writeEntries(w io.Writer, all map[string]string, format string) error {
	switch format {
	case "text", "":
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s = %s\n", colorize(colorBold, k), all[k])
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(all); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case "toml":
		if err := toml.NewEncoder(w).Encode(all); err != nil {
			return fmt.Errorf("encoding toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json, yaml or toml)", format)
	}
}

// --- history ---

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [key]",
		Short: "List recorded changes, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			var key string
			if len(args) == 1 {
				key = args[0]
			}

			return withStore(func(h *storeHandle) error {
				if h.History == nil {
					return errors.New("history is only recorded by the sqlite backend")
				}
				changes, err := h.History.History(key, limit)
				if err != nil {
					return err
				}
				if len(changes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No changes recorded.")
					return nil
				}
				for _, c := range changes {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-6s %s  %s → %s\n",
						colorize(colorCyan, c.ID[:8]),
						c.ChangedAt.Local().Format(time.DateTime),
						c.Op,
						c.Key,
						showValue(c.OldValue),
						showValue(c.NewValue),
					)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of changes to list")
	return cmd
}

func showValue(v *string) string {
	if v == nil {
		return "∅"
	}
	return fmt.Sprintf("%q", *v)
}

// --- env ---

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show effective program settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			for _, st := range config.Settings(cfg) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s, %s)\n", colorize(colorBold, st.Key), st.Value, st.Source, st.EnvVar)
			}
			return nil
		},
	}
}

// --- status ---

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend and server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				printError("config error: %v", err)
				return err
			}

			printStatus("Backend", "%s", cfg.Storage.Backend)
			if cfg.Storage.Backend == config.BackendSQLite {
				printStatus("Data dir", "%s", cfg.Storage.DataDir)
				if db, err := storage.Open(cfg.Storage.DataDir); err != nil {
					printStatus("Database", "error: %v", err)
				} else {
					if all, err := db.All(); err == nil {
						printStatus("Keys", "%d", len(all))
					}
					db.Close()
				}
			}

			if !cfg.Remote.Enabled {
				printStatus("Remote", "disabled")
				return nil
			}
			rc, err := remote.New(cfg.Remote.Endpoint,
				remote.WithTimeout(cfg.Remote.Timeout()),
				remote.WithToken(cfg.API.Token),
			)
			if err != nil {
				printStatus("Remote", "invalid endpoint: %v", err)
				return nil
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := rc.Ping(ctx); err != nil {
				printStatus("Remote", "unreachable at %s (local fallback in use)", cfg.Remote.Endpoint)
			} else {
				printStatus("Remote", "reachable at %s (timeout %s)", cfg.Remote.Endpoint, cfg.Remote.Timeout())
			}
			return nil
		},
	}
}
