package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/doi"
	"github.com/lehigh-university-libraries/dspacekit/notify"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

var doiQuiet bool

var doiCmd = &cobra.Command{
	Use:   "doi",
	Short: "Maintain DOIs with the registration agency",
	Long: `Send queued DOI reservations, registrations, updates and deletions to the
configured agency (doi.agency: crossref or datacite).

An identifier is an item UUID, a handle, or a DOI in any of the forms
doi:10.5072/x, 10.5072/x or https://doi.org/10.5072/x.

Failures are mailed to alert.recipient and reported on stderr unless
--quiet is given.

Examples:
  dspacekit doi list
  dspacekit doi register 123456789/5
  dspacekit doi register-all
  dspacekit doi update-all --quiet
  dspacekit doi mint 123456789/5`,
}

func init() {
	doiCmd.PersistentFlags().BoolVarP(&doiQuiet, "quiet", "q", false, "Print nothing; failures are still logged and mailed")

	doiCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List DOIs queued for each process",
		Args:  cobra.NoArgs,
		RunE: withOrganiser(func(ctx context.Context, o *doi.Organiser, _ []string) error {
			return o.ListAll(ctx)
		}),
	})

	single := []struct {
		use, short string
		run        func(*doi.Organiser, context.Context, *content.DOI) error
	}{
		{"register <identifier>", "Register one DOI online", (*doi.Organiser).Register},
		{"reserve <identifier>", "Reserve one DOI online", (*doi.Organiser).Reserve},
		{"update <identifier>", "Send the metadata of one DOI online", (*doi.Organiser).Update},
	}
	for _, c := range single {
		run := c.run
		doiCmd.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.ExactArgs(1),
			RunE: withOrganiser(func(ctx context.Context, o *doi.Organiser, args []string) error {
				row, err := o.ResolveToDOI(ctx, args[0])
				if err != nil {
					return err
				}
				return run(o, ctx, row)
			}),
		})
	}

	doiCmd.AddCommand(&cobra.Command{
		Use:   "delete <doi>",
		Short: "Delete one DOI online",
		Args:  cobra.ExactArgs(1),
		RunE: withOrganiser(func(ctx context.Context, o *doi.Organiser, args []string) error {
			return o.Delete(ctx, args[0])
		}),
	})

	batches := []struct {
		use, short string
		run        func(*doi.Organiser, context.Context) (doi.Summary, error)
	}{
		{"register-all", "Register every DOI queued for registration", (*doi.Organiser).RegisterAll},
		{"reserve-all", "Reserve every DOI queued for reservation", (*doi.Organiser).ReserveAll},
		{"update-all", "Send every queued metadata update", (*doi.Organiser).UpdateAll},
		{"delete-all", "Delete every DOI queued for deletion", (*doi.Organiser).DeleteAll},
	}
	for _, b := range batches {
		run := b.run
		doiCmd.AddCommand(&cobra.Command{
			Use:   b.use,
			Short: b.short,
			Args:  cobra.NoArgs,
			RunE: withOrganiser(func(ctx context.Context, o *doi.Organiser, _ []string) error {
				sum, err := run(o, ctx)
				if err != nil {
					return err
				}
				if sum.Failed > 0 {
					return fmt.Errorf("%d of %d DOIs failed", sum.Failed, sum.Processed)
				}
				return nil
			}),
		})
	}

	doiCmd.AddCommand(&cobra.Command{
		Use:   "mint <item>",
		Short: "Print the DOI of an item, minting one if needed",
		Args:  cobra.ExactArgs(1),
		RunE:  runDOIMint,
	})
}

func newDOIProvider(cfg *config.Config, s *store.Store) (*doi.Provider, error) {
	conn, err := doi.NewConnector(cfg.DOI, doi.NewHTTPClient(cfg.Harvester.MaxRetries, cfg.Harvester.HTTPTimeout))
	if err != nil {
		return nil, err
	}
	return doi.NewProvider(s, conn, cfg.DOI), nil
}

// withOrganiser opens the store and builds an organiser for fn.
func withOrganiser(fn func(context.Context, *doi.Organiser, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := newDOIProvider(cfg, s)
		if err != nil {
			return err
		}
		o := doi.NewOrganiser(s, p, notify.NewAlerter(cfg))
		o.Quiet = doiQuiet
		o.Out, o.Err = cmd.OutOrStdout(), cmd.ErrOrStderr()
		return fn(ctx, o, args)
	}
}

// itemArg loads an item given by UUID or handle.
func itemArg(ctx context.Context, s *store.Store, arg string) (*content.Item, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		target, herr := s.ResolveHandle(ctx, arg)
		if errors.Is(herr, store.ErrNotFound) {
			return nil, fmt.Errorf("%q is neither an item id nor a known handle", arg)
		}
		if herr != nil {
			return nil, herr
		}
		if target.Type != store.ResourceItem {
			return nil, fmt.Errorf("handle %s identifies a %s, not an item", arg, target.Type)
		}
		id = target.ID
	}
	item, err := s.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no item with id %s", id)
	}
	return item, err
}

func runDOIMint(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := itemArg(ctx, s, args[0])
	if err != nil {
		return err
	}
	p, err := newDOIProvider(cfg, s)
	if err != nil {
		return err
	}
	d, err := p.Mint(ctx, item)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), d)
	return nil
}
