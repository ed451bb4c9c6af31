// Command bookctl places and follows bulk garment bookings against a
// running booking API.
//
//	bookctl [--api URL] <command> [flags]
//
// Commands: products, quote, book, track, cancel, orders. Credentials come
// from BOOKCTL_EMAIL and BOOKCTL_PASSWORD; the catalog commands work
// without them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/booking"
	"github.com/iliyamo/garment-booking/internal/catalog"
	"github.com/iliyamo/garment-booking/internal/gateway"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/payment"
	"github.com/iliyamo/garment-booking/internal/session"
	"github.com/iliyamo/garment-booking/internal/tracker"
)

type app struct {
	client  *api.Client
	session *session.Context
	gateway payment.Gateway
	out     io.Writer
}

func main() {
	_ = godotenv.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a := &app{session: session.NewContext(), out: os.Stdout}
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		a.gateway = gateway.NewStripe(key, os.Getenv("STRIPE_API_URL"))
	}
	if err := a.execute(ctx, os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, "bookctl:", describe(err))
		os.Exit(1)
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func (a *app) execute(ctx context.Context, args ...string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	var base string
	root := &cobra.Command{
		Use:           "bookctl",
		Short:         "Place and follow bulk garment bookings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if a.client != nil {
				return
			}
			a.client = api.NewClient(base)
			go func() { _ = a.session.Run(cmd.Context(), a.client.Identities()) }()
		},
	}
	root.PersistentFlags().StringVar(&base, "api", envOr("BOOKCTL_API", "http://localhost:8080"), "booking API base URL")
	root.SetOut(a.out)
	root.AddCommand(a.productsCmd(), a.quoteCmd(), a.bookCmd(), a.trackCmd(), a.cancelCmd(), a.ordersCmd())
	return root
}

// signIn authenticates with the environment credentials and waits for the
// identity to reach the session.
func (a *app) signIn(ctx context.Context) (*session.Identity, error) {
	email, password := os.Getenv("BOOKCTL_EMAIL"), os.Getenv("BOOKCTL_PASSWORD")
	if email == "" || password == "" {
		return nil, errors.New("set BOOKCTL_EMAIL and BOOKCTL_PASSWORD")
	}
	changed := a.session.Changed()
	if _, err := a.client.SignIn(ctx, email, password); err != nil {
		return nil, err
	}
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if id := a.session.Current(); id != nil {
		return id, nil
	}
	return nil, errors.New("sign-in did not produce a session")
}

func (a *app) productsCmd() *cobra.Command {
	var category, q string
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.client.ListProducts(cmd.Context(), category, q)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tUNIT PRICE\tAVAILABLE\tMIN ORDER")
			for _, p := range items {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n", p.ID, p.Name, p.Category, p.UnitPrice.StringFixed(2), p.AvailableQuantity, p.MinOrderQuantity)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVarP(&q, "query", "q", "", "search product names")
	return cmd
}

func (a *app) quoteCmd() *cobra.Command {
	var (
		id  uint64
		qty string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a quantity of a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			facts, err := catalog.Fetch(cmd.Context(), a.client, id)
			if err != nil {
				return err
			}
			calc := facts.Calculator()
			q := calc.Default()
			if qty != "" {
				q = calc.Parse(qty)
			}
			quote := calc.Quote(q)
			if !quote.Bookable {
				fmt.Fprintf(a.out, "%s cannot be booked: only %d left, minimum order is %d\n", facts.Name, quote.Max, quote.Min)
				return nil
			}
			fmt.Fprintf(a.out, "%s: %d x %s = %s (order between %d and %d)\n",
				facts.Name, quote.Quantity, quote.UnitPrice.StringFixed(2), quote.Total.StringFixed(2), quote.Min, quote.Max)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&id, "product", 0, "product id")
	cmd.Flags().StringVar(&qty, "qty", "", "quantity (defaults to the minimum order)")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func (a *app) bookCmd() *cobra.Command {
	var (
		id                uint64
		qty, method, card string
		f                 booking.Fields
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Place a booking (cash on delivery or card)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			buyer, err := a.signIn(ctx)
			if err != nil {
				return err
			}
			facts, err := catalog.Fetch(ctx, a.client, id)
			if err != nil {
				return err
			}
			form := booking.NewController(facts, buyer)
			if qty != "" {
				form.EnterQuantity(qty)
			}
			form.SetFields(f)
			form.SetPaymentMethod(method)
			p, err := form.Submit()
			if err != nil {
				return err
			}

			orch := payment.New(a.client, a.gateway, a.client, payment.Options{Retryable: api.Retryable})
			res, err := orch.Submit(ctx, p, payment.Card{PaymentMethod: card})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "booking %d placed: %d x %s, total %s, payment %s\n",
				res.Booking.ID, res.Booking.Quantity, res.Booking.ProductName, res.Booking.TotalPrice.StringFixed(2), res.Booking.PaymentStatus)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.Uint64Var(&id, "product", 0, "product id")
	fl.StringVar(&qty, "qty", "", "quantity (defaults to the minimum order)")
	fl.StringVar(&f.FirstName, "first", "", "first name")
	fl.StringVar(&f.LastName, "last", "", "last name")
	fl.StringVar(&f.ContactNumber, "phone", "", "contact number")
	fl.StringVar(&f.DeliveryAddress, "address", "", "delivery address")
	fl.StringVar(&f.Notes, "notes", "", "notes for the manufacturer")
	fl.StringVar(&method, "method", model.MethodCashOnDelivery, `payment method: "Cash on Delivery" or "Stripe"`)
	fl.StringVar(&card, "card", "", "tokenized card payment method (card payments)")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func (a *app) trackCmd() *cobra.Command {
	var (
		id     uint64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Show the progress of a booking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			viewer, err := a.signIn(ctx)
			if err != nil {
				return err
			}
			v, err := tracker.New(a.client).Track(ctx, id, viewer)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			printView(a.out, v)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&id, "id", 0, "booking id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw view")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func printView(w io.Writer, v *tracker.View) {
	b := v.Booking
	fmt.Fprintf(w, "Order #%d  %s x %d  total %s\n", b.ID, b.ProductName, b.Quantity, b.TotalPrice.StringFixed(2))
	if v.Cancelled {
		fmt.Fprintln(w, "This order was cancelled.")
	} else {
		marks := map[tracker.StepState]string{tracker.Completed: "[x]", tracker.Current: "[>]", tracker.Upcoming: "[ ]"}
		for _, s := range v.Steps {
			fmt.Fprintf(w, "  %s %-16s %s\n", marks[s.State], s.Label, s.Description)
		}
	}
	for _, e := range v.Events {
		fmt.Fprintf(w, "  %s  %s  %s  %s\n", e.Date.Format("2006-01-02"), e.Stage, e.Location, e.Note)
	}
	if v.CanCancel {
		fmt.Fprintln(w, "This order can still be cancelled.")
	}
}

func (a *app) cancelCmd() *cobra.Command {
	var id uint64
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a pending booking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			viewer, err := a.signIn(ctx)
			if err != nil {
				return err
			}
			t := tracker.New(a.client)
			v, err := t.Track(ctx, id, viewer)
			if err != nil {
				return err
			}
			b, err := t.Cancel(ctx, v.Booking, viewer)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "booking %d %s\n", b.ID, b.Status)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&id, "id", 0, "booking id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (a *app) ordersCmd() *cobra.Command {
	var (
		f      tracker.Filter
		status string
	)
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List your bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "all" {
				f.Status = model.OrderStatus(status)
			}
			ctx := cmd.Context()
			viewer, err := a.signIn(ctx)
			if err != nil {
				return err
			}
			items, err := tracker.New(a.client).Orders(ctx, viewer, f)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ORDER\tDATE\tPRODUCT\tQTY\tTOTAL\tPAYMENT\tSTATUS")
			for _, b := range items {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n", b.ID, b.CreatedAt.Format("2006-01-02"), b.ProductName,
					b.Quantity, b.TotalPrice.StringFixed(2), b.PaymentStatus, b.Status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "pending, confirmed, processing, shipped, delivered, cancelled or all")
	cmd.Flags().StringVarP(&f.Search, "query", "q", "", "match order number or product name")
	cmd.Flags().StringVar(&f.Range, "range", "", "today, week or month")
	return cmd
}

// describe renders API errors with the server's message and everything
// else as is.
func describe(err error) string {
	var ae *api.Error
	var ve *booking.ValidationError
	var unrecorded *payment.CapturedUnrecordedError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &unrecorded):
		return fmt.Sprintf("payment %s was taken but the booking is not recorded yet (queued=%t); it will be reconciled", unrecorded.PaymentIntentID, unrecorded.Queued)
	case errors.As(err, &ae) && ae.Message != "":
		return ae.Message
	}
	return err.Error()
}
