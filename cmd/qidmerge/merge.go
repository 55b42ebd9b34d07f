package main

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/openenergytransition/qidmerge/internal/app"
	"github.com/openenergytransition/qidmerge/internal/logger"
)

func newMergeCmd() *cobra.Command {
	var (
		cf         configFlags
		input      string
		output     string
		reportPath string
		logJSON    bool
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "merge --input in.csv --output out.csv",
		Short: "Match identifiers against Wikidata and write the enriched CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input = strings.TrimSpace(input)
			output = strings.TrimSpace(output)
			if input == "" || output == "" {
				return usageError(errors.New("--input and --output are required"))
			}
			cfg, err := loadConfig(cmd, cf)
			if err != nil {
				return err
			}

			log := logger.New(logger.Options{JSON: logJSON, Verbose: verbose, Output: cmd.ErrOrStderr()})
			defer func() {
				_ = log.Sync()
			}()

			_, err = app.RunLocal(cmd.Context(), app.Options{
				Input:  input,
				Output: output,
				Report: strings.TrimSpace(reportPath),
				Config: cfg,
				Logger: log,
				Stdout: cmd.OutOrStdout(),
			})
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&input, "input", "", "Input CSV path")
	fs.StringVar(&output, "output", "", "Output CSV path")
	fs.StringVar(&reportPath, "report", "", "Audit report path (.csv, .yaml or .db)")
	fs.BoolVar(&logJSON, "log-json", false, "Log as JSON")
	fs.BoolVarP(&verbose, "verbose", "v", false, "Log every query attempt")
	addConfigFlags(fs, &cf)
	return cmd
}
