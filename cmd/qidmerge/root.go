package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openenergytransition/qidmerge/internal/config"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/redact"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var errUsage = errors.New("usage error")

func usageError(err error) error {
	return errors.Mark(err, errUsage)
}

// run executes the command line and maps the outcome to an exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	_, _ = fmt.Fprintf(stderr, "error: %s\n", redact.Secrets(err.Error()))
	if hint := errors.FlattenHints(err); hint != "" {
		_, _ = fmt.Fprintf(stderr, "hint: %s\n", hint)
	}
	if errors.Is(err, errUsage) || config.IsInvalid(err) {
		return exitUsage
	}
	return exitFailure
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "qidmerge",
		Short:         "Merge Wikidata QIDs into grid datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	root.AddCommand(newMergeCmd(), newConfigCmd(), newVersionCmd())
	return root
}

// configFlags are the overrides shared by every command that resolves configuration.
type configFlags struct {
	file    string
	dataset string
}

func addConfigFlags(fs *pflag.FlagSet, cf *configFlags) {
	fs.StringVar(&cf.file, "config", "", "YAML config file with a wikidata_merge section")
	fs.StringVar(&cf.dataset, "dataset", "", "Dataset entry in the config file to overlay")

	fs.StringSlice("code-col", nil, "Identifier column tried before the configured candidates")
	fs.StringSlice("props", nil, "Matching properties, comma separated (e.g. P528,P712)")
	fs.StringSlice("lang", nil, "Description and label languages, comma separated")
	fs.Int("batch-size", config.DefaultBatchSize, "Values per query")
	fs.Float64("throttle", config.DefaultThrottle, "Seconds between query attempts")
	fs.Int("retries", config.DefaultRetries, "Maximum attempts per query")
	fs.Float64("backoff", config.DefaultBackoff, "Exponential backoff base")
	fs.Float64("request-timeout", config.DefaultRequestTimeout, "Per-attempt timeout in seconds")
	fs.String("user-agent", "", "User-Agent sent to the query service")
	fs.String("endpoint", "", "SPARQL endpoint URL")
	fs.String("ca-path", "", "PEM bundle to trust for the endpoint")
	fs.String("output-column", config.DefaultOutputColumn, "Column the QIDs are written to")
	fs.String("existing-column", "", "Column holding previously assigned QIDs")
	fs.Bool("overwrite", false, "Replace existing QIDs with new matches")
	fs.Bool("no-bom", false, "Write the output without a UTF-8 byte order mark")
	fs.Bool("fail-fast", false, "Abort the run on the first failed query")
}

func loadConfig(cmd *cobra.Command, cf configFlags) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		File:    strings.TrimSpace(cf.file),
		Dataset: strings.TrimSpace(cf.dataset),
		Flags:   cmd.Flags(),
	})
}
