package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/spf13/cobra"
)

func newLocationCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Show or change the stored location preference",
	}
	cmd.AddCommand(newLocationShowCmd(opts))
	cmd.AddCommand(newLocationSetCmd(opts))
	cmd.AddCommand(newLocationDetectCmd(opts))
	cmd.AddCommand(newLocationClearCmd(opts))
	return cmd
}

func printPreference(w io.Writer, asJSON bool, p location.Preference) error {
	if asJSON {
		return printJSON(w, p)
	}
	if p.IsZero() {
		fmt.Fprintln(w, "No location set")
		return nil
	}
	city := p.City
	if city == "" {
		city = "(unknown)"
	}
	fmt.Fprintf(w, "City: %s\n", city)
	if p.CityLC != "" {
		fmt.Fprintf(w, "Key:  %s\n", p.CityLC)
	}
	if p.Lat != nil && p.Lng != nil {
		fmt.Fprintf(w, "At:   %.5f, %.5f\n", *p.Lat, *p.Lng)
	}
	return nil
}

func newLocationShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current location preference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				return printPreference(cmd.OutOrStdout(), opts.json, app.Locations.Get())
			})
		},
	}
}

func newLocationSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <city>",
		Short: "Set the location preference to a city",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			city := strings.TrimSpace(strings.Join(args, " "))
			if city == "" {
				return fmt.Errorf("city must not be blank")
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				p, err := app.Locator.SetCity(ctx, city)
				if err != nil {
					return err
				}
				return printPreference(cmd.OutOrStdout(), opts.json, p)
			})
		},
	}
}

func newLocationDetectCmd(opts *options) *cobra.Command {
	var lat, lng float64

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Set the location preference from device coordinates",
		Long:  "Reverse geocodes the given coordinates to a city and stores both",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
				return fmt.Errorf("coordinates out of range")
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				p, err := app.Locator.Detect(ctx, location.StaticPosition{Lat: lat, Lng: lng})
				if err != nil {
					return err
				}
				if p.City == "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "No city found for these coordinates; set one with `quickfix location set`")
				}
				return printPreference(cmd.OutOrStdout(), opts.json, p)
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude (required)")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude (required)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func newLocationClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the location preference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Locations.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Location cleared")
				return nil
			})
		},
	}
}
