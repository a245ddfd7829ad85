package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/boltdb/bolt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/azmodb/barrel/config"
	"github.com/azmodb/barrel/registry"
	"github.com/azmodb/barrel/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the configured stores and block until signaled to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "barreld.yaml", "path to the store configuration file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var stores []*store.Store
	var registries []*registry.Registry
	defer func() {
		for _, r := range registries {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.Shutdown(shutdownCtx); err != nil {
				log.Error("registry shutdown failed", zap.Error(err))
			}
			shutdownCancel()
		}
		for _, s := range stores {
			if err := s.Close(); err != nil {
				log.Error("store close failed", zap.Error(err))
			}
		}
	}()

	for _, sc := range cfg.Stores {
		path := filepath.Join(sc.DataDir, sc.Name+".db")
		s, err := store.Open(path, &bolt.Options{Timeout: sc.Timeout})
		if err != nil {
			log.Error("failed to open store", zap.String("store", sc.Name), zap.Error(err))
			return err
		}
		stores = append(stores, s)

		r := registry.New(s, log.With(zap.String("store", sc.Name)))
		registries = append(registries, r)

		if _, err := r.Open(sc.Name, true); err != nil {
			log.Error("failed to open database", zap.String("store", sc.Name), zap.Error(err))
			return err
		}

		log.Info("store ready", zap.String("store", sc.Name), zap.String("path", path))
	}

	log.Info("barreld running", zap.Int("stores", len(stores)))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
