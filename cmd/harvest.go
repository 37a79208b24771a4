package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/harvest"
	"github.com/lehigh-university-libraries/dspacekit/notify"
	"github.com/lehigh-university-libraries/dspacekit/store"
	"github.com/lehigh-university-libraries/dspacekit/transform"
	"github.com/lehigh-university-libraries/dspacekit/validate"
)

var (
	harvestForce   bool
	verifySource   string
	verifySet      string
	verifyMetadata string
	verifyWithORE  bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest collections from OAI-PMH providers",
	Long: `Harvest records from OAI-PMH providers into local collections.

A collection is harvested once it has been set up with
"dspacekit collection setup".

Examples:
  dspacekit harvest run 123456789/2
  dspacekit harvest run 123456789/2 --force
  dspacekit harvest start
  dspacekit harvest verify --source https://demo.dspace.org/oai/request --set col_1 --metadata dc
  dspacekit harvest formats`,
}

var harvestRunCmd = &cobra.Command{
	Use:   "run <collection>",
	Short: "Harvest one collection now",
	Long: `Harvest one collection, given by UUID or handle, and print the report.

--force ignores the last harvest date and re-imports records even when the
local copy is newer.`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvestRun,
}

var harvestStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the harvest scheduler until interrupted",
	Long: `Start the harvest scheduler. Collections whose last harvest is older than
harvester.interval are harvested, at most harvester.max_threads at a time.
Collections left BUSY by a previous process are reset first.`,
	Args: cobra.NoArgs,
	RunE: runHarvestStart,
}

var harvestVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check harvest settings against a provider",
	Args:  cobra.NoArgs,
	RunE:  runHarvestVerify,
}

var harvestFormatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the metadata formats that can be harvested",
	Args:  cobra.NoArgs,
	RunE:  runHarvestFormats,
}

func init() {
	harvestRunCmd.Flags().BoolVarP(&harvestForce, "force", "f", false, "Full synchronization, ignoring harvest dates")
	harvestVerifyCmd.Flags().StringVarP(&verifySource, "source", "s", "", "OAI-PMH base URL")
	harvestVerifyCmd.Flags().StringVar(&verifySet, "set", content.SetAll, "Set spec, or \"all\"")
	harvestVerifyCmd.Flags().StringVarP(&verifyMetadata, "metadata", "m", "dc", "Metadata format id")
	harvestVerifyCmd.Flags().BoolVar(&verifyWithORE, "ore", false, "Also require ORE dissemination")
	harvestVerifyCmd.MarkFlagRequired("source")

	harvestCmd.AddCommand(harvestRunCmd)
	harvestCmd.AddCommand(harvestStartCmd)
	harvestCmd.AddCommand(harvestVerifyCmd)
	harvestCmd.AddCommand(harvestFormatsCmd)
}

// newHarvester wires the transform and validation rule sets and the alert
// mailer named by cfg.
func newHarvester(cfg *config.Config, s *store.Store) (*harvest.Harvester, error) {
	t, err := transform.FromConfig(cfg.Harvester)
	if err != nil {
		return nil, err
	}
	v, err := validate.FromConfig(cfg.Harvester)
	if err != nil {
		return nil, err
	}
	return harvest.New(s, cfg,
		harvest.WithTransformer(t),
		harvest.WithValidator(v),
		harvest.WithAlerter(notify.NewAlerter(cfg)),
	), nil
}

func runHarvestRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := collectionArg(ctx, s, args[0])
	if err != nil {
		return err
	}
	h, err := newHarvester(cfg, s)
	if err != nil {
		return err
	}
	report, err := h.Run(ctx, id, harvest.Options{ForceSynchronization: harvestForce})
	if report != nil {
		fmt.Fprint(cmd.OutOrStdout(), report.String())
	}
	if err != nil {
		return fmt.Errorf("harvesting %s: %w", args[0], err)
	}
	return nil
}

func runHarvestStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := newHarvester(cfg, s)
	if err != nil {
		return err
	}
	return harvest.NewScheduler(h).Start(ctx)
}

func runHarvestVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h := harvest.New(nil, cfg)
	problems := h.Verify(cmd.Context(), verifySource, verifySet, verifyMetadata, verifyWithORE)
	out := cmd.OutOrStdout()
	if len(problems) == 0 {
		fmt.Fprintln(out, "OAI server settings verified: harvesting can start.")
		return nil
	}
	fmt.Fprintln(out, "The following problems were found:")
	for _, p := range problems {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return fmt.Errorf("%d problem(s) with the harvest settings", len(problems))
}

func runHarvestFormats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tNAMESPACE")
	for _, f := range harvest.New(nil, cfg).AvailableMetadataFormats() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Label, f.Namespace)
	}
	return w.Flush()
}
