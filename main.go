package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tournevent/tarif/internal/server"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/tournevent/tarif/pkg/tariff/recordstore"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tarif",
	Short:   "Shipping tariff quotes for Algerian provinces and communes",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quote API server",
	RunE:  runServe,
}

var quoteCmd = &cobra.Command{
	Use:   "quote [destination]",
	Short: "Price one shipment and print the breakdown",
	Example: `  tarif quote "Bab Ezzouar, Alger" --weight 3 --mode office
  tarif quote --province 31 --commune "Es Senia" --weight 1.5 --declared 12000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuote,
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search communes by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var provincesCmd = &cobra.Command{
	Use:   "provinces",
	Short: "List provinces and their zones",
	Args:  cobra.NoArgs,
	RunE:  runProvinces,
}

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Manage reference rates in the record store",
}

var ratesSetCmd = &cobra.Command{
	Use:     "set",
	Short:   "Write one reference rate",
	Example: `  tarif rates set --province 16 --commune "Bab Ezzouar" --home 400 --office 350`,
	Args:    cobra.NoArgs,
	RunE:    runRatesSet,
}

var quoteFlags struct {
	province int
	commune  string
	mode     string
	weight   float64
	length   float64
	width    float64
	height   float64
	declared float64
}

type rateInput struct {
	province   int
	commune    string
	home       float64
	office     float64
	threshold  float64
	perKg      float64
	codPercent float64
	codFixed   float64
}

var rateFlags rateInput

// rate builds the record to store. The office price is kept only when given.
func (in rateInput) rate(withOffice bool) (recordstore.Rate, error) {
	if in.province <= 0 {
		return recordstore.Rate{}, errors.New("--province is required")
	}
	if in.home <= 0 {
		return recordstore.Rate{}, errors.New("--home must be positive")
	}
	r := recordstore.Rate{
		ProvinceCode:          in.province,
		CommuneName:           strings.TrimSpace(in.commune),
		HomePrice:             in.home,
		OverweightThresholdKg: in.threshold,
		OverweightRatePerKg:   in.perKg,
		CODFeePercentage:      in.codPercent,
		CODFeeFixed:           in.codFixed,
	}
	if withOffice {
		office := in.office
		r.OfficePrice = &office
	}
	return r, nil
}

func init() {
	f := quoteCmd.Flags()
	f.IntVar(&quoteFlags.province, "province", 0, "destination province code")
	f.StringVar(&quoteFlags.commune, "commune", "", "destination commune, with --province")
	f.StringVar(&quoteFlags.mode, "mode", string(tariff.DeliveryHome), "delivery mode: home or office")
	f.Float64Var(&quoteFlags.weight, "weight", 0, "actual weight in kg")
	f.Float64Var(&quoteFlags.length, "length", 0, "length in cm")
	f.Float64Var(&quoteFlags.width, "width", 0, "width in cm")
	f.Float64Var(&quoteFlags.height, "height", 0, "height in cm")
	f.Float64Var(&quoteFlags.declared, "declared", 0, "declared value for cash on delivery")

	rf := ratesSetCmd.Flags()
	rf.IntVar(&rateFlags.province, "province", 0, "province code")
	rf.StringVar(&rateFlags.commune, "commune", "", "commune name; empty sets the province default")
	rf.Float64Var(&rateFlags.home, "home", 0, "home delivery price")
	rf.Float64Var(&rateFlags.office, "office", 0, "office delivery price; omit when the commune has no counter")
	rf.Float64Var(&rateFlags.threshold, "threshold", 0, "overweight threshold in kg")
	rf.Float64Var(&rateFlags.perKg, "rate-per-kg", 0, "overweight rate per started kg")
	rf.Float64Var(&rateFlags.codPercent, "cod-percent", 0, "cash on delivery percentage")
	rf.Float64Var(&rateFlags.codFixed, "cod-fixed", 0, "cash on delivery fixed fee")
	ratesCmd.AddCommand(ratesSetCmd)

	rootCmd.AddCommand(serveCmd, quoteCmd, searchCmd, provincesCmd, ratesCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.service.StartJanitor(ctx, a.cfg.CacheSweepEvery, a.cfg.CacheMaxAge)
	go func() {
		if err := a.service.Warm(ctx); err != nil {
			a.logger.Warn("Warm-up failed", zap.Error(err))
		}
	}()

	a.logger.Info("Starting tarif",
		zap.Int("port", a.cfg.Port),
		zap.String("version", a.cfg.Version),
		zap.Int("origin_province", a.cfg.OriginProvince),
	)

	srv := server.New(server.Config{
		Port:          a.cfg.Port,
		RatePerSecond: a.cfg.APIRatePerSecond,
		Burst:         a.cfg.APIBurst,
	}, a.service, a.metrics, a.logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runQuote(cmd *cobra.Command, args []string) error {
	var dest tariff.Destination
	switch {
	case len(args) == 1:
		dest.Query = args[0]
	case quoteFlags.province > 0:
		dest.ProvinceCode = quoteFlags.province
		dest.CommuneName = quoteFlags.commune
	default:
		return errors.New("give a destination argument or --province")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	breakdown, err := a.service.ResolvePrice(cmd.Context(), dest, tariff.ShipmentRequest{
		Mode:           tariff.DeliveryMode(quoteFlags.mode),
		ActualWeightKg: quoteFlags.weight,
		Dimensions: tariff.Dimensions{
			Length: quoteFlags.length,
			Width:  quoteFlags.width,
			Height: quoteFlags.height,
		},
		DeclaredValue: quoteFlags.declared,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, breakdown)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	matches, err := a.service.SearchCommune(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, m := range matches {
		counter := ""
		if m.Commune.HasCounterDelivery {
			counter = " [office]"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s, %s (%d)%s\n", m.Commune.Name, m.ProvinceName, m.Commune.ProvinceCode, counter)
	}
	return nil
}

func runProvinces(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	provinces, src, err := a.service.Provinces(cmd.Context())
	if err != nil {
		return err
	}
	for _, p := range provinces {
		fmt.Fprintf(cmd.OutOrStdout(), "%02d  %-24s zone %d\n", p.Code, p.Name, p.Zone)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "source: %s\n", src)
	return nil
}

func runRatesSet(cmd *cobra.Command, args []string) error {
	r, err := rateFlags.rate(cmd.Flags().Changed("office"))
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.records == nil {
		return errors.New("record store is not configured: set DATABASE_URL")
	}
	if err := a.records.Upsert(cmd.Context(), r); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rate for %d %q updated\n", r.ProvinceCode, r.CommuneName)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
