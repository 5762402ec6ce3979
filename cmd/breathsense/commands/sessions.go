package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/lumora-health/breathsense/cmd/breathsense/internal/config"
	"github.com/lumora-health/breathsense/pkg/cli"
	"github.com/lumora-health/breathsense/pkg/kv"
	"github.com/lumora-health/breathsense/pkg/session"
	"github.com/lumora-health/breathsense/pkg/storage"
)

var (
	sessionsContext   string
	sessionsDB        string
	sessionsOutput    string
	sessionsExportDir string
	sessionsS3Bucket  string
	sessionsS3Prefix  string
	sessionsS3Region  string
	sessionsRetention time.Duration
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect, export and purge recorded sessions",
	Long: `Work with the session database written by 'breathsense run'.

Examples:
  breathsense sessions list
  breathsense sessions show 7c9e6679-... --output json
  breathsense sessions export 7c9e6679-... --to ./exports
  breathsense sessions export 7c9e6679-... --s3-bucket my-archive
  breathsense sessions purge --retention 720h`,
}

// sessionsStorage resolves the storage settings for the sessions
// subcommands. Flags win over the context's storage service config.
func sessionsStorage() (config.Storage, error) {
	var sto config.Storage

	cfg, err := GetConfig()
	if err != nil {
		if sessionsDB == "" {
			return sto, err
		}
	} else {
		if dir, err := cfg.ResolveContext(sessionsContext); err == nil {
			if v, err := config.LoadService[config.Storage](dir, config.ServiceStorage); err == nil {
				sto = *v
			}
		} else if sessionsContext != "" {
			return sto, err
		}
		if sto.DBDir == "" {
			sto.DBDir = filepath.Join(cfg.DataDir(), "sessions.db")
		}
	}

	if sessionsDB != "" {
		sto.DBDir = sessionsDB
	}
	if sessionsExportDir != "" {
		sto.ExportDir = sessionsExportDir
	}
	if sessionsS3Bucket != "" {
		sto.S3Bucket = sessionsS3Bucket
	}
	if sessionsS3Prefix != "" {
		sto.S3Prefix = sessionsS3Prefix
	}
	if sessionsS3Region != "" {
		sto.S3Region = sessionsS3Region
	}
	return sto, nil
}

func openSessionStore() (kv.Store, error) {
	sto, err := sessionsStorage()
	if err != nil {
		return nil, err
	}
	if sto.DBDir == "" {
		return nil, fmt.Errorf("no session database directory; pass --db or configure storage.db_dir")
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: sto.DBDir})
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	return store, nil
}

// openExportStore picks the export destination: S3 when a bucket is
// configured, otherwise a local directory.
func openExportStore(ctx context.Context, sto config.Storage) (storage.FileStore, string, error) {
	if sto.S3Bucket != "" {
		opts := []func(*awsconfig.LoadOptions) error{}
		if sto.S3Region != "" {
			opts = append(opts, awsconfig.WithRegion(sto.S3Region))
		}
		awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awscfg)
		return storage.NewS3(client, sto.S3Bucket, sto.S3Prefix), "s3://" + sto.S3Bucket, nil
	}

	dir := sto.ExportDir
	if dir == "" {
		dir = "."
	}
	local, err := storage.NewLocal(dir)
	if err != nil {
		return nil, "", fmt.Errorf("open export directory: %w", err)
	}
	return local, dir, nil
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		metas, err := session.List(cmd.Context(), store)
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tEVENTS\tRATES")
		for _, m := range metas {
			duration := "(running)"
			if !m.EndedAt.IsZero() {
				duration = cli.FormatDuration(m.EndedAt.Sub(m.StartedAt))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
				m.ID, m.StartedAt.Format(time.RFC3339), duration, m.Events, m.Rates)
		}
		w.Flush()
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session with its events and rate measurements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		id := args[0]

		meta, err := session.Get(ctx, store, id)
		if err != nil {
			return err
		}
		events, err := session.Events(ctx, store, id)
		if err != nil {
			return err
		}
		rates, err := session.Rates(ctx, store, id)
		if err != nil {
			return err
		}

		return cli.Output(map[string]any{
			"meta":   meta,
			"events": events,
			"rates":  rates,
		}, cli.OutputOptions{Format: cli.OutputFormat(sessionsOutput)})
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a session as JSON lines",
	Long: `Export a session to a JSON-lines file.

The destination is the configured export directory, or an S3 bucket when
one is configured or passed via --s3-bucket.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sto, err := sessionsStorage()
		if err != nil {
			return err
		}
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		id := args[0]

		files, dest, err := openExportStore(ctx, sto)
		if err != nil {
			return err
		}

		if err := session.Export(ctx, store, files, id); err != nil {
			return err
		}
		cli.PrintSuccess("Exported session %s to %s/%s", id, dest, session.ExportPath(id))
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and all its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		id := args[0]
		if err := session.Delete(cmd.Context(), store, id); err != nil {
			return err
		}
		fmt.Printf("Session %s deleted.\n", id)
		return nil
	},
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sessions older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		cutoff := time.Now().Add(-sessionsRetention)
		n, err := session.Purge(cmd.Context(), store, cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d session(s) started before %s.\n", n, cutoff.Format(time.RFC3339))
		return nil
	},
}

func init() {
	sessionsCmd.PersistentFlags().StringVarP(&sessionsContext, "context", "c", "", "config context (default: current context)")
	sessionsCmd.PersistentFlags().StringVar(&sessionsDB, "db", "", "session database directory")

	sessionsShowCmd.Flags().StringVarP(&sessionsOutput, "output", "o", "yaml", "output format (yaml, json)")

	sessionsExportCmd.Flags().StringVar(&sessionsExportDir, "to", "", "local export directory")
	sessionsExportCmd.Flags().StringVar(&sessionsS3Bucket, "s3-bucket", "", "export to this S3 bucket")
	sessionsExportCmd.Flags().StringVar(&sessionsS3Prefix, "s3-prefix", "", "key prefix inside the S3 bucket")
	sessionsExportCmd.Flags().StringVar(&sessionsS3Region, "s3-region", "", "AWS region for the S3 bucket")

	sessionsPurgeCmd.Flags().DurationVar(&sessionsRetention, "retention", session.RetentionPeriod, "retention period")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)

	rootCmd.AddCommand(sessionsCmd)
}
