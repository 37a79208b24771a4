package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/dspacekit/oai"
)

var oaiPrefix string

var oaiCmd = &cobra.Command{
	Use:   "oai",
	Short: "Query an OAI-PMH provider",
	Long: `Issue single OAI-PMH requests against a provider, for checking a source
before setting up a harvest.

Examples:
  dspacekit oai identify https://demo.dspace.org/oai/request
  dspacekit oai sets https://demo.dspace.org/oai/request
  dspacekit oai formats https://demo.dspace.org/oai/request
  dspacekit oai get https://demo.dspace.org/oai/request oai:demo.dspace.org:10673/7 --prefix oai_dc`,
}

var oaiIdentifyCmd = &cobra.Command{
	Use:   "identify <base-url>",
	Short: "Describe the provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runOAIIdentify,
}

var oaiSetsCmd = &cobra.Command{
	Use:   "sets <base-url>",
	Short: "List the provider's sets",
	Args:  cobra.ExactArgs(1),
	RunE:  runOAISets,
}

var oaiFormatsCmd = &cobra.Command{
	Use:   "formats <base-url> [identifier]",
	Short: "List the provider's metadata formats",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runOAIFormats,
}

var oaiGetCmd = &cobra.Command{
	Use:   "get <base-url> <identifier>",
	Short: "Print the metadata of one record",
	Args:  cobra.ExactArgs(2),
	RunE:  runOAIGet,
}

func init() {
	oaiGetCmd.Flags().StringVarP(&oaiPrefix, "prefix", "p", "oai_dc", "Metadata prefix")

	oaiCmd.AddCommand(oaiIdentifyCmd)
	oaiCmd.AddCommand(oaiSetsCmd)
	oaiCmd.AddCommand(oaiFormatsCmd)
	oaiCmd.AddCommand(oaiGetCmd)
}

func oaiClient(baseURL string) (*oai.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return oai.NewClient(baseURL,
		oai.WithHTTPClient(oai.NewRetryingHTTPClient(cfg.Harvester.MaxRetries, cfg.Harvester.HTTPTimeout)),
		oai.WithRateLimit(cfg.Harvester.RequestsPerSecond),
	)
}

func runOAIIdentify(cmd *cobra.Command, args []string) error {
	c, err := oaiClient(args[0])
	if err != nil {
		return err
	}
	id, err := c.Identify(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Repository:\t%s\n", id.RepositoryName)
	fmt.Fprintf(w, "Base URL:\t%s\n", id.BaseURL)
	fmt.Fprintf(w, "Protocol:\t%s\n", id.ProtocolVersion)
	fmt.Fprintf(w, "Admin:\t%s\n", strings.Join(id.AdminEmail, ", "))
	fmt.Fprintf(w, "Earliest datestamp:\t%s\n", id.EarliestDatestamp)
	fmt.Fprintf(w, "Deleted records:\t%s\n", id.DeletedRecord)
	fmt.Fprintf(w, "Granularity:\t%s\n", id.Granularity)
	return w.Flush()
}

func runOAISets(cmd *cobra.Command, args []string) error {
	c, err := oaiClient(args[0])
	if err != nil {
		return err
	}
	sets, err := c.ListSets(cmd.Context())
	if oai.HasCode(err, oai.CodeNoSetHierarchy) {
		fmt.Fprintln(cmd.OutOrStdout(), "The provider does not support sets.")
		return nil
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPEC\tNAME")
	for _, s := range sets {
		fmt.Fprintf(w, "%s\t%s\n", s.Spec, s.Name)
	}
	return w.Flush()
}

func runOAIFormats(cmd *cobra.Command, args []string) error {
	c, err := oaiClient(args[0])
	if err != nil {
		return err
	}
	identifier := ""
	if len(args) > 1 {
		identifier = args[1]
	}
	formats, err := c.ListMetadataFormats(cmd.Context(), identifier)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PREFIX\tNAMESPACE")
	for _, f := range formats {
		fmt.Fprintf(w, "%s\t%s\n", strings.TrimSpace(f.Prefix), strings.TrimSpace(f.Namespace))
	}
	return w.Flush()
}

func runOAIGet(cmd *cobra.Command, args []string) error {
	c, err := oaiClient(args[0])
	if err != nil {
		return err
	}
	rec, err := c.GetRecord(cmd.Context(), args[1], oaiPrefix)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Identifier: %s\nDatestamp: %s\n", rec.Header.Identifier, rec.Header.Datestamp)
	if len(rec.Header.SetSpecs) > 0 {
		fmt.Fprintf(out, "Sets: %s\n", strings.Join(rec.Header.SetSpecs, ", "))
	}
	if rec.Header.IsDeleted() {
		fmt.Fprintln(out, "The record is deleted.")
		return nil
	}
	fmt.Fprintln(out, strings.TrimSpace(rec.MetadataXML()))
	return nil
}
