package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/services/listings"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newListingsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Manage the provider listings you publish",
	}
	cmd.AddCommand(newListingsMineCmd(opts))
	cmd.AddCommand(newListingsCreateCmd(opts))
	cmd.AddCommand(newListingsEditCmd(opts))
	cmd.AddCommand(newListingsDeleteCmd(opts))
	cmd.AddCommand(newListingsWatchCmd(opts))
	return cmd
}

// formFlags binds the listing form to command flags
type formFlags struct {
	name, firmName, category, city, phone, description, experience, price string
}

func (f *formFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Your name")
	cmd.Flags().StringVar(&f.firmName, "firm-name", "", "Business name")
	cmd.Flags().StringVar(&f.category, "category", "", "Service category (see `quickfix categories`)")
	cmd.Flags().StringVar(&f.city, "city", "", "City you serve")
	cmd.Flags().StringVar(&f.phone, "phone", "", "Contact phone")
	cmd.Flags().StringVar(&f.description, "description", "", "What you offer")
	cmd.Flags().StringVar(&f.experience, "experience", "", "Years of experience")
	cmd.Flags().StringVar(&f.price, "price", "", "Price or rate")
}

// form returns the flag values. Flags the user did not set keep the values of
// base, when given.
func (f *formFlags) form(cmd *cobra.Command, base *models.Provider) listings.Form {
	pick := func(flag, value, fallback string) string {
		if base == nil || cmd.Flags().Changed(flag) {
			return value
		}
		return fallback
	}
	var b models.Provider
	if base != nil {
		b = *base
	}
	return listings.Form{
		Name:            pick("name", f.name, b.Name),
		FirmName:        pick("firm-name", f.firmName, b.FirmName),
		Category:        pick("category", f.category, b.Category),
		City:            pick("city", f.city, b.City),
		Phone:           pick("phone", f.phone, b.Phone),
		Description:     pick("description", f.description, b.Description),
		ExperienceYears: listings.Text(pick("experience", f.experience, strconv.Itoa(b.ExperienceYears))),
		Price:           listings.Text(pick("price", f.price, b.Price)),
	}
}

func printSaveResult(cmd *cobra.Command, asJSON bool, res *listings.Result) error {
	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, res)
	}
	verb := "Updated"
	if res.Created {
		verb = "Created"
	}
	fmt.Fprintf(out, "%s listing %s\n", verb, res.ID)
	if !res.Geocoded {
		if res.Queued {
			fmt.Fprintln(out, "The city could not be located yet; coordinates will be added in the background")
		} else {
			fmt.Fprintln(out, "The city could not be located; the listing was saved without coordinates")
		}
	}
	return nil
}

// validationDetail lists each failing field on its own line
func validationDetail(err error) error {
	var ve *listings.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	names := make([]string, 0, len(ve.Fields))
	for name := range ve.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("listing is invalid:")
	for _, name := range names {
		fmt.Fprintf(&b, "\n  --%s %s", strings.ReplaceAll(flagName(name), "_", "-"), ve.Fields[name])
	}
	return fmt.Errorf("%s", b.String())
}

func flagName(field string) string {
	switch field {
	case models.FieldExperienceYears:
		return "experience"
	default:
		return field
	}
}

func newListingsMineCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List your listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				mine, err := app.Listings.ListMine(ctx, app.UID())
				if err != nil {
					return err
				}
				return printProviders(cmd.OutOrStdout(), opts.json, providerList{Count: len(mine), Providers: mine},
					"You have no listings; create one with `quickfix listings create`")
			})
		},
	}
}

func newListingsCreateCmd(opts *options) *cobra.Command {
	var flags formFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				res, err := app.Listings.Save(ctx, app.UID(), "", flags.form(cmd, nil))
				if err != nil {
					return validationDetail(err)
				}
				return printSaveResult(cmd, opts.json, res)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newListingsEditCmd(opts *options) *cobra.Command {
	var flags formFlags

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a listing; unset flags keep their current values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				uid := app.UID()
				if uid == "" {
					return listings.ErrNotSignedIn
				}
				existing, err := app.Listings.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if existing.UID != uid {
					return listings.ErrForbidden
				}
				res, err := app.Listings.Save(ctx, uid, existing.ID, flags.form(cmd, existing))
				if err != nil {
					return validationDetail(err)
				}
				return printSaveResult(cmd, opts.json, res)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newListingsDeleteCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one of your listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Listings.Delete(ctx, app.UID(), args[0], yes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted listing %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the deletion")
	return cmd
}

func newListingsWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print your listings now and after every change until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				out := cmd.OutOrStdout()
				sub, err := app.Listings.WatchMine(ctx, app.UID(), func(mine []models.Provider, err error) {
					if err != nil {
						app.Logger.Warn("listings_watch_failed", zap.Error(err))
						fmt.Fprintf(cmd.ErrOrStderr(), "Live updates failed: %v\n", present(err))
						stop()
						return
					}
					if !opts.json {
						fmt.Fprintf(out, "--- %d listing(s)\n", len(mine))
					}
					_ = printProviders(out, opts.json, providerList{Count: len(mine), Providers: mine}, "You have no listings")
				})
				if err != nil {
					return err
				}
				defer sub.Unsubscribe()

				<-ctx.Done()
				return nil
			})
		},
	}
}
