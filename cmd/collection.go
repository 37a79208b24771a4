package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

var (
	collectionName        string
	collectionHandle      string
	collectionDescription string

	setupSource    string
	setupSet       string
	setupMetadata  string
	setupType      int
	setupSkipCheck bool
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Create collections and manage their harvest settings",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a collection",
	Long: `Create a collection. Without --handle a handle is minted under
handle.prefix.

Examples:
  dspacekit collection create --name "Theses"
  dspacekit collection create --name "Datasets" --handle 123456789/3`,
	Args: cobra.NoArgs,
	RunE: runCollectionCreate,
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections with their harvest status",
	Args:  cobra.NoArgs,
	RunE:  runCollectionList,
}

var collectionSetupCmd = &cobra.Command{
	Use:   "setup <collection>",
	Short: "Configure a collection for harvesting",
	Long: `Configure a collection, given by UUID or handle, to harvest from an
OAI-PMH provider. The settings are verified against the provider first
unless --skip-check is given.

Harvest types:
  1  metadata only
  2  metadata and references (ORE resource map)
  3  metadata and bitstreams

Examples:
  dspacekit collection setup 123456789/2 --source https://demo.dspace.org/oai/request --set col_1 --metadata dc
  dspacekit collection setup 123456789/2 --source https://demo.dspace.org/oai/request --type 3`,
	Args: cobra.ExactArgs(1),
	RunE: runCollectionSetup,
}

var collectionShowCmd = &cobra.Command{
	Use:   "show <collection>",
	Short: "Show a collection and its harvest settings",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionShow,
}

func init() {
	collectionCreateCmd.Flags().StringVarP(&collectionName, "name", "n", "", "Collection name")
	collectionCreateCmd.Flags().StringVar(&collectionHandle, "handle", "", "Handle (default: minted)")
	collectionCreateCmd.Flags().StringVarP(&collectionDescription, "description", "d", "", "Description")
	collectionCreateCmd.MarkFlagRequired("name")

	collectionSetupCmd.Flags().StringVarP(&setupSource, "source", "s", "", "OAI-PMH base URL")
	collectionSetupCmd.Flags().StringVar(&setupSet, "set", content.SetAll, "Set spec, or \"all\"")
	collectionSetupCmd.Flags().StringVarP(&setupMetadata, "metadata", "m", "dc", "Metadata format id")
	collectionSetupCmd.Flags().IntVarP(&setupType, "type", "t", int(content.HarvestMetadata), "Harvest type (1-3)")
	collectionSetupCmd.Flags().BoolVar(&setupSkipCheck, "skip-check", false, "Do not verify the settings against the provider")
	collectionSetupCmd.MarkFlagRequired("source")

	collectionCmd.AddCommand(collectionCreateCmd)
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionSetupCmd)
	collectionCmd.AddCommand(collectionShowCmd)
}

func runCollectionCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	c := &content.Collection{
		Name:        collectionName,
		Handle:      collectionHandle,
		Description: collectionDescription,
	}
	err = s.InTx(ctx, func(tx *store.Store) error {
		if c.Handle == "" {
			h, err := tx.MintHandle(ctx, cfg.Handle.Prefix)
			if err != nil {
				return err
			}
			c.Handle = h
		}
		return tx.CreateCollection(ctx, c)
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created collection %s with handle %s\n", c.ID, c.Handle)
	return nil
}

func runCollectionList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cols, err := s.ListCollections(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UUID\tHANDLE\tNAME\tHARVEST")
	for _, c := range cols {
		status := "-"
		hc, err := s.GetHarvestedCollection(ctx, c.ID)
		switch {
		case err == nil:
			status = hc.HarvestStatus.String()
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Handle, c.Name, status)
	}
	return w.Flush()
}

func runCollectionSetup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := collectionArg(ctx, s, args[0])
	if err != nil {
		return err
	}
	typ := content.HarvestType(setupType)
	if typ < content.HarvestMetadata || typ > content.HarvestFull {
		return fmt.Errorf("harvest type must be 1, 2 or 3, got %d", setupType)
	}
	if _, ok := cfg.Harvester.MetadataFormat(setupMetadata); !ok {
		return fmt.Errorf("metadata format %q is not configured; available: %s",
			setupMetadata, strings.Join(cfg.Harvester.MetadataFormatIDs(), ", "))
	}

	if !setupSkipCheck {
		h, err := newHarvester(cfg, s)
		if err != nil {
			return err
		}
		withORE := typ > content.HarvestMetadata
		if problems := h.Verify(ctx, setupSource, setupSet, setupMetadata, withORE); len(problems) > 0 {
			return fmt.Errorf("harvest settings rejected:\n  %s", strings.Join(problems, "\n  "))
		}
	}

	hc, err := s.GetHarvestedCollection(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hc = &content.HarvestedCollection{CollectionID: id, HarvestStatus: content.StatusReady}
	case err != nil:
		return err
	}
	if hc.HarvestStatus == content.StatusUnknownError {
		hc.HarvestStatus = content.StatusReady
		hc.HarvestMessage = ""
	}
	hc.HarvestType = typ
	hc.OaiSource = setupSource
	hc.OaiSetID = setupSet
	hc.MetadataConfigID = setupMetadata
	if err := s.SaveHarvestedCollection(ctx, hc); err != nil {
		return fmt.Errorf("saving harvest settings: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Collection %s will harvest %s (set %s, %s, %s)\n",
		id, hc.OaiSource, hc.OaiSetID, hc.MetadataConfigID, hc.HarvestType)
	return nil
}

func runCollectionShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := collectionArg(ctx, s, args[0])
	if err != nil {
		return err
	}
	c, err := s.GetCollection(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.CountItems(ctx, store.ItemFilter{Collection: id})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "UUID:\t%s\n", c.ID)
	fmt.Fprintf(w, "Handle:\t%s\n", c.Handle)
	fmt.Fprintf(w, "Name:\t%s\n", c.Name)
	if c.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", c.Description)
	}
	fmt.Fprintf(w, "Items:\t%d\n", n)

	hc, err := s.GetHarvestedCollection(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintf(w, "Harvesting:\tnot configured\n")
	case err != nil:
		return err
	default:
		fmt.Fprintf(w, "Harvest type:\t%s\n", hc.HarvestType)
		fmt.Fprintf(w, "OAI source:\t%s\n", hc.OaiSource)
		fmt.Fprintf(w, "OAI set:\t%s\n", hc.OaiSetID)
		fmt.Fprintf(w, "Metadata format:\t%s\n", hc.MetadataConfigID)
		fmt.Fprintf(w, "Status:\t%s\n", hc.HarvestStatus)
		if hc.HarvestMessage != "" {
			fmt.Fprintf(w, "Message:\t%s\n", hc.HarvestMessage)
		}
		if !hc.LastHarvested.IsZero() {
			fmt.Fprintf(w, "Last harvested:\t%s\n", hc.LastHarvested.Format("2006-01-02 15:04:05 MST"))
		}
	}
	return w.Flush()
}
