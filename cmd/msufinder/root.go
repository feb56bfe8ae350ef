package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/go-msu-finder/config"
	"github.com/spf13/cobra"
)

const longHelp = `Finds the download links of the patches shipped with Microsoft security bulletins.

The following example will list all IE update links:
  msufinder -q "Internet Explorer"

Searching advisories via the bulletin catalog:
When you submit a query, the catalog search will first look it up from the product list,
and then return all the advisories that include the keyword you are looking for. If there's
no match from the product list, a generic search is made instead. The generic method also
means you can search by MSB, KB, or even CVE number.

Searching advisories via web search:
Searching via web search requires a Custom Search API key and a search engine ID. Create a
search engine whose sites to search is technet.microsoft.com and enable the Custom Search API
for your key. The default quota is 1000 queries per day.

The web search is equivalent to running this query manually:
  site:technet.microsoft.com intitle:"Microsoft Security Bulletin" -"Microsoft Security Bulletin Summary"

Dry run:
To double check for false positives, use -d and verify the search results before collecting
the download links.

Download:
Links are printed to stdout one per line, so they can be fed to a downloader:
  msufinder -q "ms15-100" -r x86 > /tmp/list.txt && wget -i /tmp/list.txt`

// flagValues holds the raw command line values. Only flags the user set
// override the file and environment.
type flagValues struct {
	keyword      string
	engine       string
	regex        string
	apiKey       string
	engineID     string
	dryRun       bool
	configPath   string
	outputFile   string
	outputFormat string
	quiet        bool
	noPin        bool
	timeout      time.Duration
	metricsAddr  string
}

func newRootCmd(run func(cmd *cobra.Command, cfg *config.Config) error) *cobra.Command {
	var flags flagValues

	cmd := &cobra.Command{
		Use:           "msufinder -q <keyword> [flags]",
		Short:         "msufinder finds Microsoft patch download links for a product or bulletin.",
		Long:          longHelp,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().NFlag() == 0 {
				return fmt.Errorf("no options set, try -h for usage")
			}
			cfg, err := buildConfig(cmd, flags)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	defaults := config.DefaultConfig()
	f := cmd.Flags()
	f.StringVarP(&flags.keyword, "query", "q", "", "Find advisories that include this keyword")
	f.StringVarP(&flags.engine, "search-engine", "s", defaults.SearchEngine, "Search engine to use: catalog or websearch")
	f.StringVarP(&flags.regex, "regex", "r", "", "Only report download links matching this regular expression")
	f.StringVar(&flags.apiKey, "apikey", "", "Custom Search API key, required by the websearch engine")
	f.StringVar(&flags.engineID, "cx", "", "Custom Search engine ID, required by the websearch engine")
	f.BoolVarP(&flags.dryRun, "dryrun", "d", false, "Perform a search, but do not fetch download links")
	f.StringVar(&flags.configPath, "config", "", "YAML configuration file")
	f.StringVarP(&flags.outputFile, "output", "o", "", "Also write links to this file")
	f.StringVar(&flags.outputFormat, "format", defaults.OutputFormat, "Output file format: text, csv, or json")
	f.BoolVar(&flags.quiet, "quiet", false, "Hide debug traces")
	f.BoolVar(&flags.noPin, "no-pin", false, "Resolve hosts through DNS instead of the pinned addresses")
	f.DurationVar(&flags.timeout, "timeout", defaults.Timeout, "Timeout per request attempt")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")

	return cmd
}

// buildConfig layers defaults, the config file, the environment and the
// flags the user set, in that order.
func buildConfig(cmd *cobra.Command, flags flagValues) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		if err := cfg.LoadFile(flags.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	cfg.Keyword = flags.keyword
	cfg.FilterPattern = flags.regex
	cfg.DryRun = flags.dryRun
	cfg.Quiet = flags.quiet
	cfg.OutputFile = flags.outputFile
	if changed("search-engine") {
		cfg.SearchEngine = flags.engine
	}
	if changed("apikey") {
		cfg.APIKey = flags.apiKey
	}
	if changed("cx") {
		cfg.SearchEngineID = flags.engineID
	}
	if changed("format") {
		cfg.OutputFormat = strings.ToLower(flags.outputFormat)
	}
	if changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if flags.noPin {
		cfg.Hosts = cfg.Hosts.Unpinned()
	}
	return cfg, nil
}
