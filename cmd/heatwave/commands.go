package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/n2code/heatwave"
	"github.com/n2code/heatwave/cmd/heatwave/flags"
	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/output"
	"github.com/spf13/cobra"
)

func newRootCommand(rq *cliRequest) *cobra.Command {
	root := &cobra.Command{
		Use:   "heatwave",
		Short: "Curate tilt-series micrographs of a cryo-imaging session",
		Long: `heatwave keeps a JSON document of all tilt series of a session with their
micrographs, processing artifacts and selection state. Deselected micrographs
can be archived ("incinerated"), restored, or dropped from the aligned stacks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if rq.verbose && rq.quiet {
				return errors.New("quiet mode and verbose mode are mutually exclusive")
			}
			return nil
		},
	}
	persistent := root.PersistentFlags()
	persistent.BoolVarP(&rq.verbose, flags.Verbose, "v", false, "output more details on what is done (verbose mode)")
	persistent.BoolVarP(&rq.quiet, flags.Quiet, "q", false, "output only requested information and errors (quiet mode)")
	persistent.BoolVarP(&rq.plain, flags.Plain, "p", false, "plain output without terminal escape sequences")
	persistent.StringVarP(&rq.configFile, flags.Config, "c", "", "YAML file overriding the default layout")
	persistent.StringVar(&rq.document, flags.Document, "", `the JSON document (default "heatwave.json")`)
	persistent.StringVar(&rq.inDir, flags.InDir, "", `the input directory of the session (default "SNARTomo")`)
	persistent.StringVar(&rq.imodBin, flags.ImodBin, "", "directory of the stacking tool, searched before $IMOD_BIN and $PATH")

	root.AddCommand(
		newIngestCommand(rq),
		newTreeCommand(rq),
		newSummaryCommand(rq),
		newSelectCommand(rq),
		newNoteCommand(rq),
		newIncinerateCommand(rq),
		newRestoreCommand(rq),
		newRestackCommand(rq),
		newQueryCommand(rq),
		newWatchCommand(rq),
		newConfigCommand(rq),
	)
	return root
}

// expandInputs resolves glob patterns, a pattern without matches is kept as is to surface the missing file.
func expandInputs(patterns []string) []string {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			files = append(files, pattern)
			continue
		}
		files = append(files, matches...)
	}
	return files
}

func newIngestCommand(rq *cliRequest) *cobra.Command {
	var targets, mdocs []string
	var fromScratch bool
	cmd := &cobra.Command{
		Use:   "ingest [FILE...]",
		Short: "Read target files or metadata files into the document",
		Long: `Read target files or metadata files into the document. Arguments ending in
.mdoc count as metadata files, all others as target files. Glob patterns are
expanded. Without any input the document must exist already.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if strings.HasSuffix(arg, ".mdoc") {
					mdocs = append(mdocs, arg)
				} else {
					targets = append(targets, arg)
				}
			}
			api, err := rq.open(fromScratch)
			if err != nil {
				return err
			}
			if _, err := api.Ingest(expandInputs(targets), expandInputs(mdocs)); err != nil {
				return err
			}
			return api.PersistChanges()
		},
	}
	cmd.Flags().StringSliceVar(&targets, flags.IngestTargets, nil, "target files listing the tilt series (comma-separated or repeated)")
	cmd.Flags().StringSliceVar(&mdocs, flags.IngestMdocs, nil, "metadata files without target files (comma-separated or repeated)")
	cmd.Flags().BoolVar(&fromScratch, flags.IngestFromScratch, false, "start a new document, an existing one is backed up first")
	return cmd
}

func newTreeCommand(rq *cliRequest) *cobra.Command {
	var onlyDeselected bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Display targets, tilt series, and micrographs as a tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			api.PrintTree(onlyDeselected)
			return nil
		},
	}
	cmd.Flags().BoolVar(&onlyDeselected, flags.TreeOnlyDeselected, false, "show only tilt series with deselected micrographs")
	return cmd
}

func newSummaryCommand(rq *cliRequest) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count tilt series, micrographs, and artifacts on record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			api.PrintSummary()
			return nil
		},
	}
}

func newSelectCommand(rq *cliRequest) *cobra.Command {
	var discard bool
	cmd := &cobra.Command{
		Use:   "select MDOC [MICROGRAPH...]",
		Short: "Keep or discard micrographs or whole tilt series",
		Long: `Keep (default) or discard the given micrographs of a tilt series. Micrographs
are named by tilt key ("tilt12") or movie file. Without micrographs the whole
tilt series is affected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			mdoc, micrographs := args[0], args[1:]
			if len(micrographs) == 0 {
				err = api.SelectMdoc(mdoc, !discard)
			}
			for _, micrograph := range micrographs {
				if err = api.SelectMicrograph(mdoc, micrograph, !discard); err != nil {
					break
				}
			}
			if err != nil {
				return err
			}
			return api.PersistChanges()
		},
	}
	cmd.Flags().BoolVar(&discard, flags.SelectDiscard, false, "deselect instead of select")
	return cmd
}

func newNoteCommand(rq *cliRequest) *cobra.Command {
	return &cobra.Command{
		Use:   "note MDOC [TEXT...]",
		Short: "Attach a note to a tilt series, no text removes it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			if err := api.SetNote(args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			return api.PersistChanges()
		},
	}
}

// chooser decides how confirmations are obtained.
func (rq *cliRequest) chooser(withoutConfirmation bool) heatwave.RequestChoice {
	if withoutConfirmation {
		return AutoChooseDefaultOption(rq.out, rq.quiet)
	}
	return PromptUser(rq.out, !rq.plain)
}

func listCandidates(rq *cliRequest, heading string, keys []string) {
	if rq.quiet {
		return
	}
	fmt.Fprintf(rq.out, "%s\n%s\n", heading, output.Indent(2, strings.Join(keys, "\n")))
}

func newIncinerateCommand(rq *cliRequest) *cobra.Command {
	var withoutConfirmation bool
	cmd := &cobra.Command{
		Use:   "incinerate",
		Short: "Move fully deselected tilt series and their artifacts into the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			candidates, err := api.IncinerationCandidates()
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				if !rq.quiet {
					fmt.Fprintln(rq.out, "nothing to incinerate")
				}
				return nil
			}
			listCandidates(rq, "fully deselected tilt series:", candidates)
			choice := rq.chooser(withoutConfirmation)(fmt.Sprintf("Incinerate %d tilt series?", len(candidates)), []string{"incinerate", "abort"}, false)
			if choice != "incinerate" {
				return nil
			}
			_, err = api.Incinerate()
			return err
		},
	}
	cmd.Flags().BoolVar(&withoutConfirmation, flags.WithoutConfirmation, false, "do not ask before moving files")
	return cmd
}

func newRestoreCommand(rq *cliRequest) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Move archived artifacts back and reselect their micrographs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			_, err = api.Restore()
			return err
		},
	}
}

func newRestackCommand(rq *cliRequest) *cobra.Command {
	var preview, withoutConfirmation bool
	cmd := &cobra.Command{
		Use:   "restack [MDOC...]",
		Short: "Rebuild aligned stacks without deselected micrographs",
		Long: `Rebuild the aligned stack of each given tilt series, or of all with deselected
micrographs, keeping only selected micrographs. The metadata file is rewritten
after a backup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			mdocs := args
			if len(mdocs) == 0 {
				mdocs = api.RestackCandidates()
			}
			if len(mdocs) == 0 {
				if !rq.quiet {
					fmt.Fprintln(rq.out, "nothing to restack")
				}
				return nil
			}
			if preview {
				var problems []error
				for _, mdoc := range mdocs {
					diff, err := api.PreviewRestack(mdoc)
					if err != nil {
						problems = append(problems, err)
						continue
					}
					fmt.Fprint(rq.out, diff)
				}
				return errors.Join(problems...)
			}
			listCandidates(rq, "tilt series to restack:", mdocs)
			choice := rq.chooser(withoutConfirmation)(fmt.Sprintf("Restack %d tilt series?", len(mdocs)), []string{"restack", "abort"}, false)
			if choice != "restack" {
				return nil
			}
			_, err = api.Restack(cmd.Context(), args...)
			return err
		},
	}
	cmd.Flags().BoolVar(&preview, flags.RestackPreview, false, "only show how the metadata files would change")
	cmd.Flags().BoolVar(&withoutConfirmation, flags.WithoutConfirmation, false, "do not ask before rewriting files")
	return cmd
}

func newQueryCommand(rq *cliRequest) *cobra.Command {
	return &cobra.Command{
		Use:     "query JSONPATH",
		Short:   "Print the parts of the document matching a JSONPath expression",
		Example: `  heatwave query '$..[?(@.Selected == false)].SubFramePath'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			return api.PrintQuery(args[0])
		},
	}
}

func newWatchCommand(rq *cliRequest) *cobra.Command {
	var settle time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest metadata files as they appear until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rq.open(false)
			if err != nil {
				return err
			}
			return api.Watch(cmd.Context(), settle)
		},
	}
	cmd.Flags().DurationVar(&settle, flags.WatchSettle, 2*time.Second, "time without file events before new metadata files are read")
	return cmd
}

func newConfigCommand(rq *cliRequest) *cobra.Command {
	return &cobra.Command{
		Use:   "config FILE",
		Short: "Write the effective layout as YAML, a starting point for --config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := rq.layout()
			if err != nil {
				return err
			}
			rq.started = true
			if err := layout.WriteFile(args[0], settings); err != nil {
				return err
			}
			if !rq.quiet {
				fmt.Fprintf(rq.out, "layout written to %s\n", args[0])
			}
			return nil
		},
	}
}
