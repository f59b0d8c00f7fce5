package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/httpapi"
	"github.com/rustyeddy/papertrader/market"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and poll prices for triggers",
	Long: `Start the HTTP API and the price poller.

Every feed interval the poller fetches a price per configured symbol,
closes positions whose stop loss or take profit is crossed and fires
price alerts. The API identifies the user with the X-User-ID header.

Example:
  trader serve -c trader.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll prices and fire triggers without serving HTTP",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd, watchCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default http.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.Config.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	api := httpapi.NewServer(httpapi.Deps{
		Engine:      a.Engine,
		Alerts:      a.Alerts,
		Performance: a.Performance,
		Journal:     a.Journal,
		Prices:      a.Latest,
		CORSOrigins: a.Config.HTTP.CORSOrigins,
		Location:    time.Local,
		Log:         a.Log.Named("http"),
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pollDone := make(chan error, 1)
	go func() { pollDone <- a.Poller.Run(ctx) }()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Log.Info("server listening",
		zap.String("addr", addr),
		zap.String("journal", a.Config.Journal.Type),
		zap.Strings("symbols", a.Config.Feed.Symbols),
	)
	err = srv.ListenAndServe()
	cancel()
	<-pollDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	a.Poller.OnPrice = func(symbol string, price market.Price) {
		a.Latest.Set(symbol, price)
		fmt.Fprintf(out, "%s %-5s %s\n", time.Now().Format(time.TimeOnly), symbol, market.FormatPrice(price))
	}
	if err := a.Poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
