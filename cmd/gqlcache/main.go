// Command gqlcache inspects and edits a normalized cache described by a
// YAML config. Persistent tiers (badger, redis) keep state between runs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/gqlcache"
	"github.com/unkn0wn-root/gqlcache/config"
	"github.com/unkn0wn-root/gqlcache/record"
	"github.com/unkn0wn-root/gqlcache/selection"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	schemaPath string
	varsJSON   string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "gqlcache",
		Short:        "Inspect and edit a normalized GraphQL cache",
		Version:      version,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file (default: in-memory cache)")
	root.PersistentFlags().StringVar(&g.schemaPath, "schema", "", "GraphQL SDL used for field types and fragment matching")
	root.PersistentFlags().StringVar(&g.varsJSON, "vars", "", "operation variables as a JSON object")

	root.AddCommand(
		normalizeCmd(g),
		writeCmd(g),
		readCmd(g),
		optimisticCmd(g),
		dumpCmd(g),
		removeCmd(g),
	)
	return root
}

func (g *globals) open(cmd *cobra.Command) (*config.Cache, error) {
	c := &config.Config{}
	if g.configPath != "" {
		var err error
		if c, err = config.Load(g.configPath); err != nil {
			return nil, err
		}
	}
	return c.Open(cmd.Context(), cmd.ErrOrStderr())
}

// operation parses the query file, or the literal text when no such file
// exists.
func (g *globals) operation(queryArg string) (*selection.Operation, error) {
	opts := selection.Options{}
	if g.schemaPath != "" {
		sdl, err := os.ReadFile(g.schemaPath)
		if err != nil {
			return nil, err
		}
		opts.Schema = string(sdl)
	}
	if g.varsJSON != "" {
		if err := json.Unmarshal([]byte(g.varsJSON), &opts.Variables); err != nil {
			return nil, fmt.Errorf("--vars: %w", err)
		}
	}
	return selection.Parse(fileOrLiteral(queryArg), opts)
}

func fileOrLiteral(arg string) string {
	if b, err := os.ReadFile(arg); err == nil {
		return string(b)
	}
	return arg
}

func readData(path string) (gqlcache.Data, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var d gqlcache.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	// accept a full response envelope as well as bare data
	if inner, ok := d["data"].(map[string]any); ok && len(d) <= 3 {
		return inner, nil
	}
	return d, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func normalizeCmd(g *globals) *cobra.Command {
	var dataPath string
	cmd := &cobra.Command{
		Use:   "normalize QUERY",
		Short: "Print the records a response would be stored as, without writing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := g.operation(args[0])
			if err != nil {
				return err
			}
			data, err := readData(dataPath)
			if err != nil {
				return err
			}
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			n, err := s.Normalize(op, data)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), record.DumpRecords(n.Records))
			return err
		},
	}
	cmd.Flags().StringVarP(&dataPath, "data", "d", "-", "response JSON file, - for stdin")
	return cmd
}

func writeCmd(g *globals) *cobra.Command {
	var dataPath string
	cmd := &cobra.Command{
		Use:   "write QUERY",
		Short: "Normalize a response into the cache and print the changed fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := g.operation(args[0])
			if err != nil {
				return err
			}
			data, err := readData(dataPath)
			if err != nil {
				return err
			}
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			ch, err := s.WriteOperation(cmd.Context(), op, data, true)
			if err != nil {
				return err
			}
			for _, fk := range ch.FieldKeys() {
				fmt.Fprintln(cmd.OutOrStdout(), fk)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataPath, "data", "d", "-", "response JSON file, - for stdin")
	return cmd
}

func readCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "read QUERY",
		Short: "Answer a query from the cache; exits non-zero on a miss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := g.operation(args[0])
			if err != nil {
				return err
			}
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			d, ok, err := s.ReadOperation(cmd.Context(), op)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cache miss")
			}
			return printJSON(cmd.OutOrStdout(), gqlcache.Data{"data": d})
		},
	}
}

// optimisticCmd shows a response as it would read with a pending patch on
// top. Patches live in memory, so it is rolled back before exit.
func optimisticCmd(g *globals) *cobra.Command {
	var dataPath string
	cmd := &cobra.Command{
		Use:   "optimistic QUERY",
		Short: "Read a query with a response applied as an optimistic patch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := g.operation(args[0])
			if err != nil {
				return err
			}
			data, err := readData(dataPath)
			if err != nil {
				return err
			}
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			ctx := cmd.Context()
			id := uuid.New()
			if _, err := s.WriteOptimisticUpdates(ctx, op, data, id, true); err != nil {
				return err
			}
			defer s.RollbackOptimisticUpdates(ctx, id, false)

			d, ok, err := s.ReadOperation(ctx, op)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cache miss")
			}
			return printJSON(cmd.OutOrStdout(), gqlcache.Data{"data": d})
		},
	}
	cmd.Flags().StringVarP(&dataPath, "data", "d", "-", "patch JSON file, - for stdin")
	return cmd
}

func dumpCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print every record of every tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			d, err := s.Dump(cmd.Context())
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), record.Dump(d))
			return err
		},
	}
}

func removeCmd(g *globals) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "remove KEY...",
		Short: "Remove records, optionally with everything they reference",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			n, err := s.RemoveAll(cmd.Context(), args, cascade)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d record(s)\n", n)
			return err
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "also remove every record reachable by reference")
	return cmd
}
