package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/store"

	// Register all format plugins
	_ "github.com/lehigh-university-libraries/dspacekit/format/bibtex"
	_ "github.com/lehigh-university-libraries/dspacekit/format/crossref"
	_ "github.com/lehigh-university-libraries/dspacekit/format/csl"
	_ "github.com/lehigh-university-libraries/dspacekit/format/csv"
	_ "github.com/lehigh-university-libraries/dspacekit/format/datacite"
	_ "github.com/lehigh-university-libraries/dspacekit/format/dim"
	_ "github.com/lehigh-university-libraries/dspacekit/format/dublincore"
	_ "github.com/lehigh-university-libraries/dspacekit/format/mods"
	_ "github.com/lehigh-university-libraries/dspacekit/format/ore"
	_ "github.com/lehigh-university-libraries/dspacekit/format/schemaorg"
)

var (
	exportOutput     string
	exportCollection string
	exportAll        bool
	exportColumns    []string
	exportSeparator  string
	exportPretty     bool
)

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Write items in a metadata format",
	Long: `Serialize items from the database in one of the registered formats.

Only archived, non-withdrawn items are written unless --all is given.
Output defaults to stdout.

Examples:
  dspacekit export oai_dc --collection 123456789/2
  dspacekit export csv -o items.csv --columns dc.title,dc.contributor.author
  dspacekit export bibtex --collection 123456789/2 -o theses.bib
  dspacekit export datacite --pretty
  dspacekit export schemaorg --collection 123456789/2`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().StringVarP(&exportCollection, "collection", "c", "", "Only items of this collection (UUID or handle)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Include workspace and withdrawn items")
	exportCmd.Flags().StringSliceVar(&exportColumns, "columns", nil, "CSV columns to output")
	exportCmd.Flags().StringVar(&exportSeparator, "separator", "||", "Multi-value field separator")
	exportCmd.Flags().BoolVar(&exportPretty, "pretty", false, "Pretty-print output")
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	ser, err := format.GetSerializer(args[0])
	if err != nil {
		return fmt.Errorf("unknown format %q (available: %s): %w", args[0], strings.Join(format.List(), ", "), err)
	}

	ctx := cmd.Context()
	cfg, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := store.ItemFilter{ArchivedOnly: !exportAll}
	if exportCollection != "" {
		id, err := collectionArg(ctx, s, exportCollection)
		if err != nil {
			return err
		}
		filter.Collection = id
	}
	items, err := s.ListItems(ctx, filter)
	if err != nil {
		return fmt.Errorf("loading items: %w", err)
	}

	var output io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing output file: %w", cerr)
			}
		}()
		output = f
	}

	opts := format.NewSerializeOptions()
	opts.Pretty = exportPretty
	opts.Columns = exportColumns
	opts.MultiValueSeparator = exportSeparator
	opts.Depositor = cfg.DOI.Crossref.DepositorName
	opts.DepositorEmail = cfg.DOI.Crossref.DepositorEmail
	opts.Registrant = cfg.DOI.Crossref.Registrant
	opts.BatchID = uuid.NewString()
	if err := ser.Serialize(output, items, opts); err != nil {
		return fmt.Errorf("writing %s: %w", args[0], err)
	}
	return nil
}
