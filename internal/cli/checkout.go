package cli

import (
	"fmt"
	"strings"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/cardswap/cardswap/internal/services"
	"github.com/spf13/cobra"
)

func findOffer(cmd *cobra.Command, app *App, id string) (models.Offer, error) {
	store, err := app.Catalog(cmd.Context())
	if err != nil {
		return models.Offer{}, err
	}
	offer, ok := store.Snapshot().Get(id)
	if !ok {
		return models.Offer{}, fmt.Errorf("offer %q: %w", id, models.ErrNotFound)
	}
	return offer, nil
}

func newNegotiateCommand(app *App) *cobra.Command {
	var req services.NegotiateRequest

	cmd := &cobra.Command{
		Use:   "negotiate <offer-id>",
		Short: "Send the seller a lower offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			buyer, err := app.CurrentUser(ctx)
			if err != nil {
				return err
			}
			offer, err := findOffer(cmd, app, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Listing price for %q: %.0f\n", offer.Title, offer.Price)
			n, err := app.checkout.Negotiate(ctx, buyer, offer, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Your offer of %.0f has been sent to the seller. (ref %s)\n", n.OfferedPrice, n.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&req.OfferedPrice, "price", 0, "your offer, below the listing price")
	f.StringVar(&req.Message, "message", "", "message to the seller")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newBuyCommand(app *App) *cobra.Command {
	var req services.PurchaseRequest

	cmd := &cobra.Command{
		Use:   "buy <offer-id>",
		Short: "Buy an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			buyer, err := app.CurrentUser(ctx)
			if err != nil {
				return err
			}
			offer, err := findOffer(cmd, app, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			q := services.QuoteFor(offer)
			fmt.Fprintf(out, "Offer price:  %.0f\nPlatform fee: %.0f\nTotal:        %.0f\n", q.Price, q.PlatformFee, q.Total)

			if req.PaymentMethod == "" {
				if req.PaymentMethod, err = app.prompt(fmt.Sprintf("Pay with (%s): ", strings.Join(models.PaymentMethods, ", "))); err != nil {
					return err
				}
			}

			fmt.Fprintln(out, "Processing payment...")
			p, err := app.checkout.Purchase(ctx, buyer, offer, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Payment of %.0f completed successfully! (ref %s)\n", p.Amount, p.Reference)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.PaymentMethod, "method", "", "card, netbanking or upi")
	return cmd
}
