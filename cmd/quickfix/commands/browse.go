package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/quickfix/quickfix-api/internal/matcher"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/spf13/cobra"
)

// providerList is the JSON shape of a lookup result
type providerList struct {
	Category  string            `json:"category,omitempty"`
	City      string            `json:"city"`
	Count     int               `json:"count"`
	Providers []models.Provider `json:"providers"`
}

func printProviders(w io.Writer, asJSON bool, list providerList, empty string) error {
	if asJSON {
		if list.Providers == nil {
			list.Providers = []models.Provider{}
		}
		return printJSON(w, list)
	}
	if len(list.Providers) == 0 {
		fmt.Fprintln(w, empty)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFIRM\tCATEGORY\tCITY\tPHONE\tPRICE")
	for _, p := range list.Providers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.FirmName, p.Category, p.City, p.Phone, p.Price)
	}
	return tw.Flush()
}

func printProvider(w io.Writer, asJSON bool, p *models.Provider) error {
	if asJSON {
		return printJSON(w, p)
	}
	fmt.Fprintf(w, "%s (%s)\n", p.Name, p.FirmName)
	fmt.Fprintf(w, "Category:   %s\n", p.Category)
	fmt.Fprintf(w, "City:       %s\n", p.City)
	fmt.Fprintf(w, "Phone:      %s\n", p.Phone)
	fmt.Fprintf(w, "Experience: %d years\n", p.ExperienceYears)
	fmt.Fprintf(w, "Price:      %s\n", p.Price)
	if p.HasCoordinates() {
		fmt.Fprintf(w, "At:         %.5f, %.5f\n", *p.Lat, *p.Lng)
	}
	if p.Description != "" {
		fmt.Fprintf(w, "\n%s\n", p.Description)
	}
	return nil
}

func newCategoriesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the service categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.json {
				return printJSON(cmd.OutOrStdout(), models.Categories)
			}
			for _, c := range models.Categories {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func newCategoryCmd(opts *options) *cobra.Command {
	var city string

	cmd := &cobra.Command{
		Use:   "category <name>",
		Short: "Browse a category's providers",
		Long:  "Lists a category's providers in --city, or in the stored location when no city is given. Use --city all for every city.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, ok := models.CanonicalCategory(strings.Join(args, " "))
			if !ok {
				return fmt.Errorf("unknown category %q; see `quickfix categories`", strings.Join(args, " "))
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				effective := location.EffectiveCity(city, app.Locations.Get())
				providers, err := app.Finder.FindProviders(ctx, matcher.Request{
					Mode:       matcher.ModeCategory,
					Category:   category,
					City:       effective,
					ExcludeUID: app.UID(),
				})
				if err != nil {
					return err
				}
				if effective == "" {
					effective = location.AllCities
				}
				list := providerList{Category: category, City: effective, Count: len(providers), Providers: providers}
				return printProviders(cmd.OutOrStdout(), opts.json, list, fmt.Sprintf("No %s providers found in %s", category, effective))
			})
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "City to browse (defaults to the stored location)")
	return cmd
}

func newSearchCmd(opts *options) *cobra.Command {
	var city string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search every category in a city",
		Long:  "Searches --city, or the stored location when no city is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				effective := location.EffectiveCity(city, app.Locations.Get())
				if effective == "" && !opts.json {
					fmt.Fprintln(cmd.OutOrStdout(), "No city selected; pass --city or run `quickfix location set`")
					return nil
				}
				providers, err := app.Finder.FindProviders(ctx, matcher.Request{
					Mode:       matcher.ModeSearch,
					City:       effective,
					ExcludeUID: app.UID(),
				})
				if err != nil {
					return err
				}
				list := providerList{City: effective, Count: len(providers), Providers: providers}
				return printProviders(cmd.OutOrStdout(), opts.json, list, "No providers found in "+effective)
			})
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "City to search (defaults to the stored location)")
	return cmd
}

func newProviderCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "provider <id>",
		Short: "Show a provider's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				p, err := app.Listings.View(ctx, app.UID(), args[0])
				if err != nil {
					return err
				}
				return printProvider(cmd.OutOrStdout(), opts.json, p)
			})
		},
	}
}
