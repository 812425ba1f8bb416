package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"cedra_checkout/internal/checkout"
	"cedra_checkout/internal/checkout/client"
	"cedra_checkout/internal/config"
	"cedra_checkout/internal/middleware"
	"cedra_checkout/internal/models"
	"cedra_checkout/internal/pricing"
	"cedra_checkout/internal/reconcile"

	"github.com/spf13/cobra"
)

var (
	journalPath string
	apiURL      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Paiements encaissés sans commande : consultation et rejeu du commit",
	}
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", envOr("RECONCILE_JOURNAL", "reconcile.db"), "Fichier bolt du journal")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("CHECKOUT_API_URL", "http://localhost:8080"), "URL de l'API checkout")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(retryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Liste les entrées du journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			asJSON, _ := cmd.Flags().GetBool("json")

			journal, err := reconcile.Open(journalPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			entries, err := journal.List(all)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			printEntries(cmd, entries)
			return nil
		},
	}
	cmd.Flags().BoolP("all", "a", false, "Inclure les entrées résolues")
	cmd.Flags().BoolP("json", "j", false, "Sortie JSON")
	return cmd
}

func printEntries(cmd *cobra.Command, entries []reconcile.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Aucune entrée.")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GATEWAY ORDER\tUSER\tTOTAL\tTENTATIVES\tENREGISTRÉ\tCOMMANDE\tRAISON")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			e.GatewayOrderID, e.UserID, e.Draft.PaymentBreakdown.Total.StringFixed(2), e.Attempts,
			e.RecordedAt.Format(time.RFC3339), orDash(e.OrderID), e.Reason)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func retryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [gatewayOrderId]",
		Short: "Rejoue le commit avec la même preuve et le même brouillon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			clearCart, _ := cmd.Flags().GetBool("clear-cart")
			if len(args) == 0 && !all {
				return fmt.Errorf("gatewayOrderId requis (ou --all)")
			}

			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET manquant")
			}

			journal, err := reconcile.Open(journalPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			var entries []reconcile.Entry
			if all {
				if entries, err = journal.List(false); err != nil {
					return err
				}
			} else {
				e, err := journal.Get(args[0])
				if err != nil {
					return err
				}
				if e.Resolved() {
					fmt.Fprintf(cmd.OutOrStdout(), "✅ %s déjà résolu (commande %s)\n", e.GatewayOrderID, e.OrderID)
					return nil
				}
				entries = []reconcile.Entry{*e}
			}

			failed := 0
			for _, e := range entries {
				order, err := retry(cmd.Context(), cfg, journal, e, clearCart)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "❌ %s: %v\n", e.GatewayOrderID, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %s rejoué → commande %s (%s)\n", e.GatewayOrderID, order.BusinessOrderID, order.ID)
			}
			if failed > 0 {
				return fmt.Errorf("%d rejeu(x) en échec", failed)
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "Rejouer toutes les entrées non résolues")
	cmd.Flags().Bool("clear-cart", false, "Vider le panier de l'utilisateur après le commit")
	return cmd
}

// retry agit au nom de l'utilisateur de l'entrée, avec un jeton court signé localement.
func retry(ctx context.Context, cfg *config.Config, journal *reconcile.Journal, e reconcile.Entry, clearCart bool) (*models.Order, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	token, err := middleware.IssueToken([]byte(cfg.JWTSecret), models.User{ID: e.UserID}, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	api := client.New(apiURL, client.StaticToken(token), nil)
	var cart checkout.Cart = keepCart{}
	if clearCart {
		cart = api.Cart()
	}
	policy := pricing.Policy{TaxRate: cfg.TaxRate, ShippingFee: cfg.ShippingFee}
	machine := checkout.NewMachine(api, cart, nil, journal, policy, cfg.Currency)

	session := checkout.Recovered(e)
	if err := machine.RetryCommit(ctx, session); err != nil {
		return nil, err
	}
	return session.Order, nil
}

// keepCart laisse le panier intact : il a pu changer depuis le paiement.
type keepCart struct{}

func (keepCart) Snapshot(context.Context) (models.CartSnapshot, error) {
	return models.CartSnapshot{}, nil
}

func (keepCart) Clear(context.Context) error { return nil }
