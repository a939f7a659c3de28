package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-blocks/pkg/blocks"
	"github.com/tendant/simple-blocks/pkg/blocks/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var configFile string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "blockctl",
		Short: "Manage posts and their content blocks",
		Long: `blockctl talks to the block store configured by DATABASE_URL
(memory, postgres:// or sqlite://) or by a YAML config file.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewPingCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewPostCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewAnalyzeCommand())

	return rootCmd
}

// configFromFlags loads configuration from --config or the environment.
func configFromFlags(cmd *cobra.Command) (*config.ServerConfig, error) {
	configFile, _ := cmd.Flags().GetString("config")

	opts := []config.Option{config.WithEnv()}
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	return config.Load(opts...)
}

// runtimeFromFlags builds the engine from --config or the environment.
func runtimeFromFlags(cmd *cobra.Command) (*config.Runtime, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := configFromFlags(cmd)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg.BuildService(cmd.Context(), logger)
}

func NewPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the configured database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := cfg.CheckDatabase(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s is reachable\n", cfg.DatabaseType)
			return nil
		},
	}
}

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the post and block tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := cfg.CheckDatabase(cmd.Context()); err != nil {
				return err
			}

			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d block collections\n", len(rt.Service.Registry().Collections()))
			return nil
		},
	}
}

func NewPostCommand() *cobra.Command {
	postCmd := &cobra.Command{
		Use:   "post",
		Short: "Manage posts",
	}

	var slug, title, author string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			post := &blocks.Post{Slug: slug, Title: title}
			if author != "" {
				id, err := uuid.Parse(author)
				if err != nil {
					return fmt.Errorf("invalid author id: %w", err)
				}
				post.AuthorID = id
			}

			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Store.CreatePost(cmd.Context(), post); err != nil {
				return err
			}
			return printJSON(cmd, post)
		},
	}
	createCmd.Flags().StringVar(&slug, "slug", "", "post slug (required)")
	createCmd.Flags().StringVar(&title, "title", "", "post title")
	createCmd.Flags().StringVar(&author, "author", "", "author id")
	_ = createCmd.MarkFlagRequired("slug")

	postCmd.AddCommand(createCmd)
	return postCmd
}

func NewListCommand() *cobra.Command {
	var slug string
	cmd := &cobra.Command{
		Use:   "list [post-id]",
		Short: "List a post's blocks in order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (slug == "") {
				return fmt.Errorf("give either a post id or --slug")
			}

			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := blocks.WithRequestCache(cmd.Context())
			var list []*blocks.Block
			if slug != "" {
				list, err = rt.Service.GetBlocksBySlug(ctx, slug)
			} else {
				id, perr := uuid.Parse(args[0])
				if perr != nil {
					return fmt.Errorf("invalid post id: %w", perr)
				}
				list, err = rt.Service.GetBlocksByPostID(ctx, id)
			}
			if err != nil {
				return err
			}

			for _, b := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-10s %s  %s\n", b.Position, b.Kind, b.ID, b.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "address the post by slug")
	return cmd
}

func NewAnalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <post-id>",
		Short: "Report word count and reading time of a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid post id: %w", err)
			}

			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			analysis, err := rt.Service.AnalyzeContent(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, analysis)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
