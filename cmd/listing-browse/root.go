package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/content-listing/pkg/debounce"
	"github.com/Sternrassler/content-listing/pkg/listing"
)

// options are the browse command flags.
type options struct {
	apiURL    string
	redisURL  string
	basePath  string
	address   string
	perPage   int
	rateLimit float64
	debounce  time.Duration
	logLevel  string
	sync      bool
}

func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "listing-browse",
		Short: "Browse a paginated content listing from the terminal",
		Long: `listing-browse opens one listing view and reads commands from stdin.

Commands:
  category [slug]   select a category (no slug clears it)
  page <n>          go to page n
  search [term]     set the search term (debounced)
  back              return to the previous address
  go <address>      open an address, e.g. /blog/page/3?category=go
  reload            fetch the current page again
  items             print the items of the current page
  show              print the current page controls
  quit              exit

Example usage:
  listing-browse --api http://localhost:8081 --address "/blog?category=go"
  printf 'page 2\nsearch chan\n' | listing-browse --sync`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBrowser(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.close()
			return b.run(cmd.InOrStdin())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.apiURL, "api", getEnv("CONTENT_API_URL", "http://localhost:8081"), "content service base URL")
	flags.StringVar(&opts.redisURL, "redis", getEnv("REDIS_URL", ""), "Redis address for response caching (empty disables)")
	flags.StringVar(&opts.basePath, "base", getEnv("LISTING_BASE_PATH", "/blog"), "listing base path")
	flags.StringVar(&opts.address, "address", "", "initial address (default: the base path)")
	flags.IntVar(&opts.perPage, "per-page", listing.DefaultPerPage, "items per page")
	flags.Float64Var(&opts.rateLimit, "rate-limit", 10, "content service requests per second (0 = unlimited)")
	flags.DurationVar(&opts.debounce, "debounce", debounce.DefaultInterval, "quiet period before a search term is applied")
	flags.StringVar(&opts.logLevel, "log-level", getEnv("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.sync, "sync", false, "wait for each command's page before reading the next (scripted input)")

	return cmd
}
