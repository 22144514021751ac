package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Inspect district resolution",
}

var geoResolveCmd = &cobra.Command{
	Use:   "resolve [lat lon]",
	Short: "Resolve a coordinate or address to a district",
	Long: `Resolves a location against the configured district boundaries, the same way
the ingestion pipeline does. Give a lat/lon pair, an --address, or both;
coordinates win when they land inside a district polygon.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		if len(args) == 1 {
			return eris.New("geo: lat and lon must be given together")
		}
		if len(args) == 0 && address == "" {
			return eris.New("geo: need a lat/lon pair or --address")
		}

		var lat, lon *float64
		if len(args) == 2 {
			la, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return eris.Wrapf(err, "geo: parse lat %q", args[0])
			}
			lo, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return eris.Wrapf(err, "geo: parse lon %q", args[1])
			}
			lat, lon = &la, &lo
		}

		resolver, err := buildResolver()
		if err != nil {
			return err
		}

		district, ok := resolver.Resolve(lat, lon, address)
		if !ok {
			fmt.Println("no district matched")
			return nil
		}
		fmt.Println(district)
		return nil
	},
}

func init() {
	geoResolveCmd.Flags().String("address", "", "address text to match against streets and district names")
	geoCmd.AddCommand(geoResolveCmd)
	rootCmd.AddCommand(geoCmd)
}
