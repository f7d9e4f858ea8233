// Command aci routes computer-interface operations to the best
// available backend and exposes the semantic search and symbolic
// reasoning dispatchers.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanzoai/aci/internal/operation"
)

var (
	// Global flags.
	configPath      string
	backendOverride string
	autoConfirm     bool
	verbose         bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aci",
	Short: "aci - agent computer interface router",
	Long: `aci dispatches named operations (file access, shell, clipboard,
desktop control) to prioritized backends, gated by a permission policy,
and hosts two specialized dispatchers: semantic search over embedded
document collections and symbolic reasoning over source syntax trees.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <operation>",
	Short: "Dispatch one operation through the backend router",
	Long: `Dispatches a named operation with key=value arguments, e.g.:

  aci exec file.read --arg path=README.md
  aci exec shell.execute --arg "command=go version" --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kvs, _ := cmd.Flags().GetStringArray("arg")
		opArgs, err := parseArgs(kvs)
		if err != nil {
			return err
		}

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		result := a.router.Dispatch(cmd.Context(), operation.NewRequest(args[0], opArgs))
		return emit(result)
	},
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List backends, their capabilities and probe state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		for _, d := range a.registry.All() {
			state := "unprobed"
			if p := d.LastProbe(); p != nil {
				if p.Available {
					state = "available"
				} else {
					state = fmt.Sprintf("unavailable (%v)", p.Err)
				}
			}
			fmt.Printf("%s  priority=%d  %s\n", d.Name(), d.Priority(), state)
			for _, c := range d.Backend().Capabilities() {
				flags := ""
				if c.Elevated {
					flags += " elevated"
				}
				if c.Mutating {
					flags += " mutating"
				}
				fmt.Printf("  %s%s\n", c.Name, flags)
			}
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [backend]",
	Short: "Re-probe one backend, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if len(args) == 1 {
			result, err := a.registry.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: available=%v err=%v\n", args[0], result.Available, result.Err)
			return nil
		}

		a.registry.ProbeAll(cmd.Context())
		for _, d := range a.registry.All() {
			p := d.LastProbe()
			fmt.Printf("%s: available=%v err=%v\n", d.Name(), p.Available, p.Err)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search against a loaded collection",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if res := a.semantic.Execute(ctx, operation.OpLoadCollection,
			map[string]any{"path": collection}); !res.Success {
			return emit(res)
		}
		return emit(a.semantic.Execute(ctx, operation.OpVectorSearch, map[string]any{
			"query":     strings.Join(args, " "),
			"n_results": limit,
		}))
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Embed and index documents into a collection",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		var documents, metadatas []any
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}
			documents = append(documents, string(content))
			metadatas = append(metadatas, map[string]any{"source": path})
		}

		ctx := cmd.Context()
		if res := a.semantic.Execute(ctx, operation.OpLoadCollection,
			map[string]any{"path": collection}); !res.Success {
			return emit(res)
		}
		return emit(a.semantic.Execute(ctx, operation.OpVectorIndex, map[string]any{
			"documents": documents,
			"metadatas": metadatas,
		}))
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <path>",
	Short: "List symbols declared in a source file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  symbolicRunE(operation.OpFindSymbols, nil),
}

var refsCmd = &cobra.Command{
	Use:   "refs <path> <symbol>",
	Short: "Find references to a symbol",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSymbolic(cmd, operation.OpFindReferences,
			map[string]any{"file_path": args[0], "symbol_name": args[1]})
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps <path>",
	Short: "Analyze import dependencies of a source file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  symbolicRunE(operation.OpAnalyzeDependencies, nil),
}

// symbolicRunE builds a RunE for single-path symbolic commands.
func symbolicRunE(op string, extra map[string]any) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"file_path": args[0]}
		for k, v := range extra {
			params[k] = v
		}
		return runSymbolic(cmd, op, params)
	}
}

func runSymbolic(cmd *cobra.Command, op string, params map[string]any) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	return emit(a.symbolic.Execute(cmd.Context(), op, params))
}

// parseArgs turns repeated k=v flags into an argument bag. Values that
// parse as integers or booleans keep their type.
func parseArgs(kvs []string) (map[string]any, error) {
	args := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return nil, fmt.Errorf("invalid --arg %q, want key=value", kv)
		}
		key, raw := kv[:i], kv[i+1:]
		switch {
		case raw == "true" || raw == "false":
			args[key] = raw == "true"
		default:
			if n, err := strconv.Atoi(raw); err == nil {
				args[key] = n
			} else {
				args[key] = raw
			}
		}
	}
	return args, nil
}

// emit prints one result as JSON and maps failure to exit code 1.
func emit(result *operation.Result) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !result.Success {
		return fmt.Errorf("%s: %s", result.Kind, result.Message)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".aci/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&backendOverride, "backend", "", "prefer a specific backend, falling back to priority order")
	rootCmd.PersistentFlags().BoolVar(&autoConfirm, "yes", false, "auto-confirm elevated operations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	execCmd.Flags().StringArray("arg", nil, "operation argument key=value (repeatable)")

	searchCmd.Flags().String("collection", "default", "collection path")
	searchCmd.Flags().Int("limit", 10, "maximum results")
	indexCmd.Flags().String("collection", "default", "collection path")

	rootCmd.AddCommand(execCmd, capabilitiesCmd, probeCmd,
		searchCmd, indexCmd, symbolsCmd, refsCmd, depsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
