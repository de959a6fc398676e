package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hanifauzan/greenmart/internal/auth"
	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/service"
)

func printItems(items []cart.LineItem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tTITLE\tPRICE\tQTY\tUNIT\tSELLER")
	for _, item := range items {
		fmt.Fprintf(
			w,
			"%s\t%s\t%s\t%d\t%s\t%s\n",
			item.ProductId,
			item.Title,
			item.Price.String(),
			item.Quantity,
			item.Unit,
			item.SellerName,
		)
	}
	w.Flush()
}

func printCart(crt cart.Cart) {
	printItems(crt.Items)
	fmt.Printf("items: %d", crt.TotalItems)
	if crt.Region != "" {
		fmt.Printf("  region: %s", crt.Region)
	}
	fmt.Printf(
		"\nsubtotal: %s  delivery: %s  total: %s\n",
		crt.Subtotal.String(),
		crt.DeliveryCharge.String(),
		crt.TotalAmount.String(),
	)
}

func loginCommand(session *auth.TokenSession, svc *service.CartService) *cobra.Command {
	var token string
	command := &cobra.Command{
		Use:   "login",
		Short: "Store a session token and merge the guest cart into the account cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cmd.Context()
			if err := session.Login(c, token); err != nil {
				return err
			}
			crt, err := svc.SyncOnLogin(c)
			if err != nil {
				return err
			}
			printCart(crt)
			return nil
		},
	}
	command.Flags().StringVar(&token, "token", "", "bearer token issued by the auth service")
	_ = command.MarkFlagRequired("token")
	return command
}

func logoutCommand(session *auth.TokenSession, svc *service.CartService) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc.OnLogout()
			return session.Logout(cmd.Context())
		},
	}
}

func cartCommand(svc *service.CartService) *cobra.Command {
	command := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and mutate the shopping cart",
	}
	command.AddCommand(
		cartShowCommand(svc),
		cartAddCommand(svc),
		cartUpdateCommand(svc),
		cartRemoveCommand(svc),
		cartClearCommand(svc),
		cartRegionCommand(svc),
		cartEditCommand(svc),
		cartCheckoutCommand(svc),
	)
	return command
}

func cartShowCommand(svc *service.CartService) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			crt, err := svc.Load(cmd.Context())
			if err != nil {
				return err
			}
			printCart(crt)
			return nil
		},
	}
}

func cartAddCommand(svc *service.CartService) *cobra.Command {
	item := cart.LineItem{}
	var price string
	var quantity int32
	command := &cobra.Command{
		Use:   "add",
		Short: "Add a product to the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("failed parsing price with error=%w", err)
			}
			item.Price = parsed
			crt, err := svc.AddItem(cmd.Context(), item, quantity)
			if err != nil {
				return err
			}
			printCart(crt)
			return nil
		},
	}
	command.Flags().StringVar(&item.ProductId, "product-id", "", "catalog product id")
	command.Flags().StringVar(&item.Title, "title", "", "product title")
	command.Flags().StringVar(&price, "price", "", "unit price")
	command.Flags().StringVar(&item.Unit, "unit", "kg", "sale unit")
	command.Flags().
		Int32Var(&item.MinimumOrderQuantity, "min-qty", 1, "minimum order quantity")
	command.Flags().Int32Var(&quantity, "qty", 1, "quantity to add")
	command.Flags().StringVar(&item.Image, "image", "", "product image url")
	command.Flags().StringVar(&item.Category, "category", "", "product category")
	command.Flags().StringVar(&item.SellerId, "seller-id", "", "seller id")
	command.Flags().StringVar(&item.SellerName, "seller-name", "", "seller name")
	_ = command.MarkFlagRequired("product-id")
	_ = command.MarkFlagRequired("title")
	_ = command.MarkFlagRequired("price")
	return command
}

func cartUpdateCommand(svc *service.CartService) *cobra.Command {
	var quantity int32
	command := &cobra.Command{
		Use:   "update <product-id>",
		Short: "Set the quantity of a cart item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crt, err := svc.UpdateItem(cmd.Context(), args[0], quantity)
			if err != nil {
				return err
			}
			printCart(crt)
			return nil
		},
	}
	command.Flags().Int32Var(&quantity, "qty", 0, "new quantity")
	_ = command.MarkFlagRequired("qty")
	return command
}

func cartRemoveCommand(svc *service.CartService) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove an item from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crt, err := svc.RemoveItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCart(crt)
			return nil
		},
	}
}

func cartClearCommand(svc *service.CartService) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := svc.ClearCart(cmd.Context())
			return err
		},
	}
}

func cartRegionCommand(svc *service.CartService) *cobra.Command {
	return &cobra.Command{
		Use:   "region <name>",
		Short: "Choose the delivery region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crt, err := svc.SetRegion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCart(crt)
			return nil
		},
	}
}

// parseSetFlag splits a --set value of the form productId=quantity.
func parseSetFlag(value string) (string, int32, error) {
	productId, raw, found := strings.Cut(value, "=")
	if !found || productId == "" {
		return "", 0, fmt.Errorf(
			"invalid --set value %q, expected product-id=quantity", value,
		)
	}
	quantity, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf(
			"failed parsing quantity in --set value %q with error=%w", value, err,
		)
	}
	return productId, int32(quantity), nil
}

func cartEditCommand(svc *service.CartService) *cobra.Command {
	var sets []string
	var removes []string
	var save, discard, checkout bool
	command := &cobra.Command{
		Use:   "edit",
		Short: "Batch quantity changes and removals as a draft, then save or discard them",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cmd.Context()
			if _, err := svc.Load(c); err != nil {
				return err
			}
			draft := svc.NewDraft()
			for _, value := range sets {
				productId, quantity, err := parseSetFlag(value)
				if err != nil {
					return err
				}
				draft.SetQuantity(productId, quantity)
			}
			for _, productId := range removes {
				draft.RemoveItem(productId)
			}
			switch {
			case discard:
				draft.Discard()
			case save:
				if err := draft.Save(c); err != nil {
					return err
				}
			}
			if checkout {
				return checkoutDraft(cmd, svc, draft)
			}
			if draft.HasChanges() {
				printItems(draft.Items())
				fmt.Println("draft has unsaved changes, rerun with --save to persist them")
				return nil
			}
			printCart(svc.Current())
			return nil
		},
	}
	command.Flags().
		StringArrayVar(&sets, "set", nil, "set an item quantity, product-id=quantity (repeatable)")
	command.Flags().
		StringArrayVar(&removes, "remove", nil, "remove an item by product id (repeatable)")
	command.Flags().BoolVar(&save, "save", false, "flush the draft to the cart store")
	command.Flags().BoolVar(&discard, "discard", false, "throw the draft away")
	command.Flags().
		BoolVar(&checkout, "checkout", false, "hand the cart to the order flow after editing")
	command.MarkFlagsMutuallyExclusive("save", "discard")
	return command
}

func checkoutDraft(cmd *cobra.Command, svc *service.CartService, draft *service.Draft) error {
	if err := draft.CheckoutAllowed(); err != nil {
		return err
	}
	crt := svc.Current()
	if crt.IsEmpty() {
		return errors.New("cart is empty")
	}
	printCart(crt)
	_, err := svc.CompleteCheckout(cmd.Context())
	return err
}

func cartCheckoutCommand(svc *service.CartService) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Hand the cart to the order flow and clear it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := svc.Load(cmd.Context()); err != nil {
				return err
			}
			return checkoutDraft(cmd, svc, svc.NewDraft())
		},
	}
}
