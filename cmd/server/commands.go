package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentmate/lease-engine/api"
	"github.com/rentmate/lease-engine/factory"
	"github.com/rentmate/lease-engine/internal/config"
	"github.com/rentmate/lease-engine/internal/logging"
	"github.com/rentmate/lease-engine/internal/metrics"
	"github.com/rentmate/lease-engine/lease"
	"github.com/rentmate/lease-engine/store/sqlite"
)

// app bundles everything serve and seed share.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *sqlite.Store
	metrics   *metrics.Metrics
	service   *lease.Service
	handler   *api.Handler
	scheduler *api.OverdueScheduler
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log, flags.logLevel)
	if err != nil {
		return nil, err
	}
	logger = logger.With(
		zap.String("service", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	clock := lease.SystemClock{Location: loc}

	store, err := sqlite.New(cfg.Database.Path, sqlite.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.New(cfg.App.Name)
	svc := lease.NewService(lease.ServiceConfig{
		Contracts: store,
		Payments:  store,
		Occupancy: store,
		Index:     store,
		Clock:     clock,
		Logger:    logger.Named("lease"),
		Recorder:  m,
	})

	handler := api.NewHandler(svc, store, logger.Named("api"))
	handler.Factory = factory.NewContractFactory().WithCurrency(lease.Currency(cfg.Currency))
	scheduler := api.NewOverdueScheduler(svc, store, logger)
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Recorder = m
	handler.Scheduler = scheduler

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		metrics:   m,
		service:   svc,
		handler:   handler,
		scheduler: scheduler,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the overdue scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			router := api.NewRouter(a.handler, api.RouterOptions{
				AllowedOrigins: a.cfg.CORS.AllowedOrigins,
				Metrics:        a.metrics,
				Logger:         a.logger.Named("http"),
			})

			server := &http.Server{
				Addr:         a.cfg.Server.Addr(),
				Handler:      router,
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
				IdleTimeout:  60 * time.Second,
			}

			a.scheduler.Start()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server starting",
					zap.String("addr", server.Addr),
					zap.String("database", a.cfg.Database.Path),
				)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			// Wait for interrupt signal or a listen failure
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-quit:
				a.logger.Info("shutting down server", zap.String("signal", sig.String()))
			case err := <-errCh:
				a.scheduler.Stop()
				return fmt.Errorf("server failed: %w", err)
			}

			a.scheduler.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			a.logger.Info("server stopped")
			return nil
		},
	}
}

// =============================================================================
// SEED
// =============================================================================

func seedCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <scenario>",
		Short: "Reset the database and load a demo scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.handler.LoadScenarioByID(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded scenario %s into %s\n", args[0], a.cfg.Database.Path)
			return nil
		},
	}
}

// =============================================================================
// SCHEDULE
// =============================================================================

func scheduleCmd(flags *globalFlags) *cobra.Command {
	var (
		file   string
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the payment schedule of a contract JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read contract file: %w", err)
			}
			f := factory.NewContractFactory().WithCurrency(lease.Currency(cfg.Currency))
			terms, err := f.ParseContract(string(raw))
			if err != nil {
				return err
			}
			terms, err = lease.Prepare(terms.WithDefaultEndDate())
			if err != nil {
				return err
			}

			var index lease.IndexSeries
			if dbPath != "" {
				store, err := sqlite.New(dbPath)
				if err != nil {
					return err
				}
				defer store.Close()
				index = store
			}

			records := lease.NewGenerator(index).Generate(terms, terms.Term())
			return printSchedule(cmd, terms, records)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "contract JSON file")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database holding published index values")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printSchedule(cmd *cobra.Command, terms lease.ContractTerms, records []lease.PaymentRecord) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Contract %s  %s  %s %s\n", terms.PropertyID, terms.Term(), terms.PaymentFrequency, terms.BaseRent)
	if terms.Linkage.Type.Enabled() {
		fmt.Fprintf(out, "Linkage   %s/%s base index date %s\n", terms.Linkage.Type, terms.Linkage.SubType, terms.Linkage.BaseIndexDate)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tDue date\tAmount\t")
	total := lease.Money{Currency: terms.BaseRent.Currency}
	for i, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t\n", i+1, r.DueDate, r.Amount.Amount.StringFixed(lease.MinorUnitPlaces))
		total.Amount = total.Amount.Add(r.Amount.Amount)
	}
	fmt.Fprintf(tw, "\tTotal\t%s\t\n", total.Amount.StringFixed(lease.MinorUnitPlaces))
	return tw.Flush()
}

// =============================================================================
// RESOLVE-INDEX
// =============================================================================

func resolveIndexCmd() *cobra.Command {
	var (
		date    string
		subType string
	)
	cmd := &cobra.Command{
		Use:   "resolve-index",
		Short: "Print the base index publication date for a signing or start date",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := lease.ParseDate(date)
			if err != nil {
				return err
			}
			sub := factory.ParseLinkageSubType(subType)
			d, ok := lease.ResolveBaseIndexDate(ref, sub)
			if !ok {
				return fmt.Errorf("sub type %q has no computed base index date", subType)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reference date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&subType, "sub-type", string(lease.SubTypeKnownAtSigning), "known or respect_of")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
