package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/waifuvault/WaifuFiles/pkg/models"
	"github.com/waifuvault/WaifuFiles/pkg/queue"
	"github.com/waifuvault/WaifuFiles/pkg/uploader"
)

var (
	flagServer      string
	flagExpires     string
	flagPassword    string
	flagHideName    bool
	flagOneTime     bool
	flagBucketToken string
	flagConcurrency int
	flagChunkSize   int64
	flagVerbose     bool
)

func main() {
	root := &cobra.Command{
		Use:   "uploadctl FILE [FILE...]",
		Short: "Upload files through the chunked upload service",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUpload,
	}
	root.Flags().StringVarP(&flagExpires, "expires", "e", "", "expiry like 1h, 30m or 2d")
	root.Flags().StringVarP(&flagPassword, "password", "p", "", "protect the file with a password")
	root.Flags().BoolVar(&flagHideName, "hide-filename", false, "hide the original filename")
	root.Flags().BoolVar(&flagOneTime, "one-time", false, "delete after first download")
	root.Flags().StringVar(&flagBucketToken, "bucket-token", "", "override the server's bucket token")
	root.Flags().IntVarP(&flagConcurrency, "concurrency", "c", queue.DefaultMaxConcurrent, "max files uploading at once")
	root.Flags().Int64Var(&flagChunkSize, "chunk-size", uploader.DefaultChunkSize, "chunk size in bytes")
	root.PersistentFlags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "upload service endpoint")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	restrictionsCmd := &cobra.Command{
		Use:   "restrictions",
		Short: "Print the current upload policy",
		RunE:  runRestrictions,
	}
	root.AddCommand(restrictionsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() *uploader.Client {
	if flagVerbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	return uploader.New(flagServer, nil, uploader.WithChunkSize(flagChunkSize))
}

func runUpload(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var policy queue.Restrictions
	if list, err := client.Restrictions(ctx); err != nil {
		slog.Warn("could not fetch restrictions, uploading without pre-checks",
			slog.String("error", err.Error()))
	} else {
		policy = queue.ParseRestrictions(list)
	}

	q := queue.New(client,
		queue.WithMaxConcurrent(flagConcurrency),
		queue.WithRestrictions(policy),
	)
	opts := models.UploadOptions{
		Expires:         flagExpires,
		Password:        flagPassword,
		HideFilename:    flagHideName,
		OneTimeDownload: flagOneTime,
		BucketToken:     flagBucketToken,
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	for _, path := range args {
		if _, err := q.Add(path, opts); err != nil {
			return fmt.Errorf("adding %s: %w", path, err)
		}
	}

	q.StartAll(ctx)

	failed := 0
	for _, item := range q.Items() {
		switch item.Status {
		case queue.StatusCompleted:
			fmt.Printf("%s\t%s\n", item.Path, item.Result.URL)
		default:
			failed++
			fmt.Fprintf(os.Stderr, "%s\tfailed: %s\n", item.Path, item.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d upload(s) failed", failed)
	}
	return nil
}

func runRestrictions(cmd *cobra.Command, args []string) error {
	client := newClient()
	list, err := client.Restrictions(cmd.Context())
	if err != nil {
		return err
	}
	for _, r := range list {
		fmt.Printf("%s\t%v\n", r.Type, r.Value)
	}
	return nil
}
