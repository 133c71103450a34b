package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cardswap/cardswap/internal/listings"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/cardswap/cardswap/internal/wizard"
	"github.com/spf13/cobra"
)

type listingsOptions struct {
	search   string
	category string
	issuer   string
	min      float64
	max      float64
	featured bool
	isNew    bool
	reset    bool
	asJSON   bool
}

// criteria builds the filter from the flags that were set. Unset flags keep
// their default values, whose price range covers every offer in bounds.
func (o listingsOptions) criteria(cmd *cobra.Command, bounds models.PriceRange) models.FilterCriteria {
	c := listings.DefaultCriteria(bounds)
	if o.reset {
		return c
	}

	flags := cmd.Flags()
	if flags.Changed("search") {
		c.Search = o.search
	}
	if flags.Changed("category") {
		c.Category = o.category
	}
	if flags.Changed("issuer") {
		c.Issuer = o.issuer
	}
	if flags.Changed("min") {
		c.Price.Min = o.min
	}
	if flags.Changed("max") {
		c.Price.Max = o.max
	}
	if flags.Changed("min") || flags.Changed("max") {
		c.Price = listings.ClampRange(c.Price, bounds)
	}
	c.FeaturedOnly = o.featured
	c.NewOnly = o.isNew
	return c
}

func newListingsCommand(app *App) *cobra.Command {
	var opts listingsOptions

	cmd := &cobra.Command{
		Use:   "listings",
		Short: "List offers matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			offers := store.Snapshot().Offers()
			criteria := opts.criteria(cmd, listings.PriceBounds(offers))
			result := listings.Filter(offers, criteria)

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printOffers(cmd.OutOrStdout(), result)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d offers (price %.0f to %.0f)\n",
				len(result), len(offers), criteria.Price.Min, criteria.Price.Max)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.search, "search", "", "match title or issuer")
	f.StringVar(&opts.category, "category", models.AllSentinel, "category, or All")
	f.StringVar(&opts.issuer, "issuer", models.AllSentinel, "issuer, or All")
	f.Float64Var(&opts.min, "min", models.DefaultMinPrice, "lowest price")
	f.Float64Var(&opts.max, "max", models.DefaultMaxPrice, "highest price")
	f.BoolVar(&opts.featured, "featured", false, "featured offers only")
	f.BoolVar(&opts.isNew, "new", false, "new offers only")
	f.BoolVar(&opts.reset, "reset", false, "ignore every other filter")
	f.BoolVar(&opts.asJSON, "json", false, "print JSON")
	return cmd
}

func printOffers(w io.Writer, offers []models.Offer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tISSUER\tCATEGORY\tPRICE\tTAGS")
	for _, o := range offers {
		var tags []string
		if o.Featured {
			tags = append(tags, "featured")
		}
		if o.IsNew {
			tags = append(tags, "new")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f\t%s\n",
			o.ID, o.Title, o.Issuer, o.Category, o.Price, strings.Join(tags, ","))
	}
	_ = tw.Flush()
}

func newFacetsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "facets",
		Short: "Show the categories, issuers and price bounds of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			facets := listings.FacetsOf(store.Snapshot())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "categories: %s\n", strings.Join(facets.Categories, ", "))
			fmt.Fprintf(out, "issuers:    %s\n", strings.Join(facets.Issuers, ", "))
			fmt.Fprintf(out, "prices:     %.0f to %.0f\n", facets.Bounds.Min, facets.Bounds.Max)
			fmt.Fprintf(out, "offers:     %d\n", facets.Count)
			return nil
		},
	}
}

func newOfferCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Manage your offers",
	}
	cmd.AddCommand(newOfferPostCommand(app))
	return cmd
}

func newOfferPostCommand(app *App) *cobra.Command {
	var (
		category string
		details  wizard.OfferDetails
		payout   string
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a new referral offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			seller, err := app.CurrentUser(ctx)
			if err != nil {
				return err
			}
			store, err := app.Catalog(ctx)
			if err != nil {
				return err
			}

			w := wizard.NewPostOffer()
			if category == "" {
				if category, err = app.prompt(fmt.Sprintf("Category (%s): ", strings.Join(models.Categories[1:], ", "))); err != nil {
					return err
				}
			}
			if err := w.SelectCategory(category); err != nil {
				return err
			}
			if err := w.SetDetails(details); err != nil {
				return err
			}
			if payout == "" {
				if payout, err = app.prompt(fmt.Sprintf("Receive payment by (%s): ", strings.Join(models.PaymentMethods, ", "))); err != nil {
					return err
				}
			}
			if err := w.SelectPaymentMethod(payout); err != nil {
				return err
			}

			posted, err := w.Submit(ctx, store, seller)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted %q as %s\n", posted.Title, posted.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&category, "category", "", "offer category")
	f.StringVar(&details.Title, "title", "", "offer title")
	f.StringVar(&details.Issuer, "issuer", "", "card issuer")
	f.Float64Var(&details.Price, "price", 0, "asking price")
	f.StringArrayVar(&details.Benefits, "benefit", nil, "a card benefit (repeatable)")
	f.StringVar(&details.ImageURL, "image", "", "image URL")
	f.StringVar(&payout, "payout", "", "how you are paid: card, netbanking or upi")
	return cmd
}
