package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/c360studio/marketctl/cart"
	"github.com/c360studio/marketctl/listing"
)

func listingsCmd(flags *rootFlags) *cobra.Command {
	var (
		category string
		search   string
		mine     bool
	)

	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Browse marketplace listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			var listings []listing.Listing
			if mine {
				if err := app.RequireAuth(); err != nil {
					return signinHint(err)
				}
				listings, err = app.Listings.Mine(cmd.Context())
			} else {
				listings, err = app.Listings.List(cmd.Context(), listing.ListOptions{
					Category: category,
					Search:   search,
				})
			}
			if err != nil {
				return signinHint(err)
			}

			if len(listings) == 0 {
				fmt.Println("No listings found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPRICE\tCATEGORY\tCONDITION\tSELLER")
			for _, l := range listings {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					l.ID, l.Title, l.Price, l.Category, l.Condition, l.SellerName)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&search, "search", "", "Search listing titles")
	cmd.Flags().BoolVar(&mine, "mine", false, "Show only your own listings")
	return cmd
}

func cartCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the shopping cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showCart(cmd, flags)
		},
	}

	cmd.AddCommand(
		cartAddCmd(flags),
		cartRemoveCmd(flags),
		cartSetQuantityCmd(flags),
		cartClearCmd(flags),
	)
	return cmd
}

func cartClearCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every item from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.RequireAuth(); err != nil {
				return signinHint(err)
			}

			if _, err := app.Carts.Clear(cmd.Context()); err != nil {
				return signinHint(err)
			}

			fmt.Println("Cart cleared")
			return nil
		},
	}
}

func showCart(cmd *cobra.Command, flags *rootFlags) error {
	app, cleanup, err := loadApp(cmd, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.RequireAuth(); err != nil {
		return signinHint(err)
	}

	c, err := app.Carts.GetOrCreate(cmd.Context())
	if err != nil {
		return signinHint(err)
	}

	if len(c.Items) == 0 {
		fmt.Println("Your cart is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LISTING\tTITLE\tPRICE\tQTY\tSUBTOTAL")
	for _, item := range c.Items {
		subtotal := item.Listing.Price * cart.Price(item.Quantity)
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			item.Listing.ID, item.Listing.Title, item.Listing.Price, item.Quantity, subtotal)
	}
	fmt.Fprintf(w, "\t\t\tTOTAL\t%s\n", app.Carts.Total(c))
	return w.Flush()
}

func cartAddCmd(flags *rootFlags) *cobra.Command {
	var quantity int

	cmd := &cobra.Command{
		Use:   "add <listing-id>",
		Short: "Add a listing to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listingID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid listing ID %q", args[0])
			}

			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.RequireAuth(); err != nil {
				return signinHint(err)
			}

			c, err := app.Carts.AddItem(cmd.Context(), listingID, quantity)
			if err != nil {
				return signinHint(err)
			}

			line := c.Line(listingID)
			if line != nil {
				fmt.Printf("Added %s (quantity now %d)\n", line.Listing.Title, line.Quantity)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "Quantity to add")
	return cmd
}

func cartRemoveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <listing-id>",
		Short: "Remove a listing from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listingID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid listing ID %q", args[0])
			}

			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.RequireAuth(); err != nil {
				return signinHint(err)
			}

			if _, err := app.Carts.RemoveItem(cmd.Context(), listingID); err != nil {
				return signinHint(err)
			}

			fmt.Println("Removed")
			return nil
		},
	}
}

func cartSetQuantityCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-quantity <listing-id> <quantity>",
		Short: "Set the quantity for a cart line",
		Long: `Set the quantity for a cart line.

Quantities below 1 are rejected; use 'marketctl cart remove' to take a
line out of the cart.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			listingID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid listing ID %q", args[0])
			}
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}

			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.RequireAuth(); err != nil {
				return signinHint(err)
			}

			if _, err := app.Carts.UpdateQuantity(cmd.Context(), listingID, quantity); err != nil {
				return signinHint(err)
			}

			fmt.Println("Updated")
			return nil
		},
	}
}

func checkoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Start a payment session for the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.RequireAuth(); err != nil {
				return signinHint(err)
			}

			url, err := app.Carts.Checkout(cmd.Context())
			if err != nil {
				return signinHint(err)
			}

			fmt.Println("Open this URL to complete your payment:")
			fmt.Println(url)
			return nil
		},
	}
}
