package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	fuzzmatch "github.com/liliang-cn/fuzzmatch"
	"github.com/liliang-cn/fuzzmatch/pkg/diskstore"
	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/scorer"
	"github.com/liliang-cn/fuzzmatch/pkg/storage"
)

var (
	dbPath        string
	vocabulary    string
	searchMode    string
	caseSensitive bool
	minScore      float64
	limit         int
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "fuzzmatch",
	Short: "CLI tool for entity resolution over SQLite vocabularies",
	Long:  `A command-line interface for loading entity vocabularies and resolving free-form strings against them.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a vocabulary database",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openResolver(nil)
		if err != nil {
			return err
		}
		defer r.Close()

		if err := r.Prepare(context.Background()); err != nil {
			return fmt.Errorf("failed to initialize vocabulary: %w", err)
		}

		fmt.Printf("Vocabulary %q initialized at %s\n", vocabulary, dbPath)
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load entities from a file (.jsonl, .csv, .tsv or .txt)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}

		r, err := openResolver(entity.NewFileSource(path))
		if err != nil {
			return err
		}
		defer r.Close()

		ctx := context.Background()
		if err := r.Prepare(ctx); err != nil {
			return fmt.Errorf("failed to load entities: %w", err)
		}

		if ds, ok := r.Storage().(*diskstore.Store); ok {
			entities, terms, err := ds.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Loaded %d entities (%d terms) into vocabulary %q\n", entities, terms, vocabulary)
		} else {
			fmt.Printf("Loaded entities into vocabulary %q\n", vocabulary)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show all matches for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		r, err := openResolver(nil)
		if err != nil {
			return err
		}
		defer r.Close()

		result, err := r.Match(context.Background(), key)
		if err != nil {
			return fmt.Errorf("lookup failed: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if result.Empty() {
			fmt.Printf("No matches for %q\n", key)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tVALUE\tTERM\tALIAS")
		for _, m := range result.Matches {
			alias := ""
			if m.IsAlias {
				alias = "yes"
			}
			fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\n", m.Score, m.Entity.Value, m.Term, alias)
		}
		w.Flush()

		if result.Choice != nil {
			fmt.Printf("Choice: %s\n", result.Choice.Entity.Value)
		} else {
			fmt.Println("Choice: none (below threshold or tied)")
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <key>",
	Short: "Resolve a key to its entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		r, err := openResolver(nil)
		if err != nil {
			return err
		}
		defer r.Close()

		e, err := r.Resolve(context.Background(), key)
		if err != nil {
			return err
		}
		if e == nil {
			fmt.Printf("No entity for %q\n", key)
			return nil
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(e, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Value: %s\n", e.Value)
		if e.Label != "" {
			fmt.Printf("Label: %s\n", e.Label)
		}
		if len(e.Aliases) > 0 {
			fmt.Printf("Aliases: %v\n", e.Aliases)
		}
		if e.Priority != nil {
			fmt.Printf("Priority: %d\n", *e.Priority)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display vocabulary statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openResolver(nil)
		if err != nil {
			return err
		}
		defer r.Close()

		ds, ok := r.Storage().(*diskstore.Store)
		if !ok {
			return fmt.Errorf("stats require a database path")
		}
		entities, terms, err := ds.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(map[string]int{
				"entities": entities,
				"terms":    terms,
			}, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Println("Vocabulary Statistics:")
			fmt.Printf("  Entities: %d\n", entities)
			fmt.Printf("  Terms: %d\n", terms)
		}
		return nil
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <a> <b>",
	Short: "Compute the fuzzy similarity of two strings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := scorer.NewTokenSortRatio()
		scored := s.Extract(args[0], []string{args[1]}, 1)
		if len(scored) == 0 {
			return fmt.Errorf("scoring failed")
		}
		fmt.Printf("Similarity: %.1f\n", scored[0].Score)
		return nil
	},
}

func openResolver(source entity.Source) (*fuzzmatch.Resolver, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path not specified")
	}

	cfg := fuzzmatch.DefaultConfig(dbPath)
	cfg.Vocabulary = vocabulary
	cfg.Search = entity.ParseSearchFlag(searchMode)
	cfg.CaseSensitive = caseSensitive
	cfg.MinScore = minScore
	cfg.Limit = limit
	cfg.NotFound = entity.NotFoundNone
	cfg.Source = source

	opts := []fuzzmatch.Option{}
	if verbose {
		opts = append(opts, fuzzmatch.WithLogger(storage.NewStdLogger(storage.LevelDebug)))
	}
	return fuzzmatch.Open(cfg, opts...)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "entities.db", "Database file path")
	rootCmd.PersistentFlags().StringVar(&vocabulary, "vocab", "vocab", "Vocabulary name inside the database")
	rootCmd.PersistentFlags().StringVarP(&searchMode, "search", "s", "fuzz", "Search mode (name/alias/fuzz)")
	rootCmd.PersistentFlags().BoolVar(&caseSensitive, "case-sensitive", false, "Match keys case-sensitively")
	rootCmd.PersistentFlags().Float64Var(&minScore, "min-score", 80.0, "Similarity threshold (0-100)")
	rootCmd.PersistentFlags().IntVar(&limit, "limit", 10, "Maximum candidates per query")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	getCmd.Flags().Bool("json", false, "Output as JSON")
	resolveCmd.Flags().Bool("json", false, "Output as JSON")
	statsCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		initCmd,
		loadCmd,
		getCmd,
		resolveCmd,
		statsCmd,
		scoreCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
