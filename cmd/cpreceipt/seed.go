package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/civicpulse/receipts/pkg/client"
)

// seedComplaints is realistic mock data for development kiosks.
var seedComplaints = []client.SubmitRequest{
	{Intent: "water_outage", Text: "No water supply in Sector 4 since 6am", Language: "en"},
	{Intent: "electricity_outage", Text: "Transformer near the school sparked and the whole lane is dark", Language: "en"},
	{Intent: "garbage", Text: "कचरा तीन दिन से नहीं उठाया गया", Language: "hi"},
	{Intent: "road", Text: "Large pothole outside bus depot gate 2", Language: "en", Priority: "high"},
	{Intent: "sewage", Text: "Drain overflowing onto the market road", Language: "en"},
	{Intent: "streetlight", Text: "Streetlights off on the canal road for a week", Language: "en", Priority: "low"},
	{Intent: "emergency", Text: "Live wire fallen on the footpath near the temple", Language: "en"},
	{Intent: "other", Text: "Stray cattle blocking the hospital entrance", Language: "en"},
}

var seedRounds int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "File sample complaints against a development server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		filed := 0
		for round := 0; round < seedRounds; round++ {
			for _, req := range seedComplaints {
				r, err := c.Submit(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("seed %s: %w", req.Intent, err)
				}
				fmt.Fprintf(os.Stdout, "  %s  #%-5d %s\n", r.ShortCode, r.ChainPosition, req.Intent)
				filed++
			}
		}
		color.Green("✓ Filed %d complaint(s)", filed)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedRounds, "rounds", 1, "how many times to file the sample set")
}
