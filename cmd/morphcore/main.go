package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/morphcore/internal/config"
	morphhttp "github.com/dropDatabas3/morphcore/internal/http"
	"github.com/dropDatabas3/morphcore/internal/morph"
	"github.com/dropDatabas3/morphcore/internal/observability/logger"
)

func main() {
	// .env opcional, los valores reales viven en el entorno.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "morphcore",
		Short: "Runtime de integraciones: OAuth, proxy y webhooks sobre providers externos",
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("MORPH_CONFIG"), "Ruta al YAML de configuración (env MORPH_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP del runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Valida la configuración y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}

	root.AddCommand(serveCmd)
	root.AddCommand(checkCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "morphcore"})
	defer func() { _ = logger.Sync() }()
	l := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := morph.New(ctx, morph.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      morphhttp.NewServer(rt),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("servidor escuchando", logger.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("señal recibida, apagando")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
