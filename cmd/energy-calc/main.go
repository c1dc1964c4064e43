package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Carnacky79/energy-optimizer-v2/internal/scoring"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "energy-calc",
		Short: "Energy efficiency calculator",
		Long: `energy-calc rates a building's energy efficiency and projects
savings, payback and CO2 reduction without running the API.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.energy-calc.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format: text|json")
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(tiersCmd())
	return rootCmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".energy-calc")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ENERGY_CALC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("heating", string(scoring.HeatingOther))
	viper.SetDefault("building", string(scoring.BuildingResidential))

	// конфиг необязателен
	viper.ReadInConfig()
}

func scoreCmd() *cobra.Command {
	var consumption, bill, area float64
	var occupants int

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Rate a building and project savings",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := scoring.EnergyProfile{
				ConsumptionKWh: consumption,
				Bill:           bill,
				AreaM2:         area,
				HeatingType:    scoring.HeatingType(viper.GetString("heating")),
				BuildingType:   scoring.BuildingType(viper.GetString("building")),
			}
			if cmd.Flags().Changed("occupants") {
				profile.Occupants = &occupants
			}

			assessment, err := scoring.Evaluate(profile)
			if err != nil {
				return err
			}
			return printAssessment(cmd.OutOrStdout(), viper.GetString("output"), assessment)
		},
	}

	cmd.Flags().Float64VarP(&consumption, "consumption", "c", 0, "monthly consumption, kWh")
	cmd.Flags().Float64VarP(&bill, "bill", "b", 0, "monthly bill")
	cmd.Flags().Float64VarP(&area, "area", "a", 0, "floor area, m²")
	cmd.Flags().IntVar(&occupants, "occupants", 0, "number of occupants")
	cmd.Flags().String("heating", "", "heating type: gas|electric|heat-pump|other")
	cmd.Flags().String("building", "", "building type: residential|office|commercial|industrial")
	cmd.MarkFlagRequired("consumption")
	cmd.MarkFlagRequired("bill")
	cmd.MarkFlagRequired("area")
	viper.BindPFlag("heating", cmd.Flags().Lookup("heating"))
	viper.BindPFlag("building", cmd.Flags().Lookup("building"))

	return cmd
}

func tiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "Print the efficiency rating table",
		RunE: func(cmd *cobra.Command, args []string) error {
			bands := scoring.Tiers()
			if viper.GetString("output") == "json" {
				return writeJSON(cmd.OutOrStdout(), bands)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIER\tkWh/m²\tSCORE\tFACTOR")
			lower := 0.0
			for _, b := range bands {
				bound := fmt.Sprintf(">= %g", lower)
				if b.Below != 0 {
					bound = fmt.Sprintf("%g..%g", lower, b.Below)
					lower = b.Below
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\n", b.Rating.Tier, bound, b.Rating.Score, b.Rating.Factor)
			}
			return tw.Flush()
		},
	}
}

func printAssessment(w io.Writer, format string, a scoring.Assessment) error {
	switch format {
	case "json":
		return writeJSON(w, struct {
			scoring.Assessment
			ROIDisplay string `json:"roi_display"`
		}{a, a.Projection.ROIDisplay()})
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	p := a.Projection
	fmt.Fprintf(w, "Rating:          %s (score %d)\n", a.Rating.Tier, a.Rating.Score)
	fmt.Fprintf(w, "Monthly savings: %.2f\n", p.MonthlySavings)
	fmt.Fprintf(w, "Annual savings:  %.2f (%d%%)\n", p.AnnualSavings, p.Percentage)
	fmt.Fprintf(w, "Investment:      %.2f\n", p.Investment)
	fmt.Fprintf(w, "Payback:         %s\n", p.ROIDisplay())
	fmt.Fprintf(w, "CO2 reduction:   %.2f t/year\n", p.CO2ReductionTonnes)
	fmt.Fprintln(w, "Recommendations:")
	for _, r := range a.Recommendations {
		fmt.Fprintf(w, "  [%s] %s: %s\n", r.Priority, r.Title, r.Savings)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
