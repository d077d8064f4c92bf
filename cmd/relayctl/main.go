package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/userrelay/internal/config"
	"github.com/dropDatabas3/userrelay/internal/observability/logger"
)

// opts son los flags globales compartidos por todos los subcomandos.
type opts struct {
	ConfigPath string
	EnvFile    string
	Out        string // "json" | "text"
	Timeout    time.Duration

	// remoto (ping / upsert --remote)
	BaseURL string
	APIKey  string
}

func (o *opts) load() (*config.Config, error) {
	if o.EnvFile != "" {
		if _, err := os.Stat(o.EnvFile); err == nil {
			_ = godotenv.Load(o.EnvFile)
		}
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "relayctl"})
	return cfg, nil
}

func (o *opts) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, o.Timeout)
}

func main() {
	o := &opts{
		ConfigPath: envOr("CONFIG_PATH", "configs/config.yaml"),
		EnvFile:    ".env",
		Out:        envOr("USERRELAY_OUT", "text"),
		Timeout:    30 * time.Second,
		BaseURL:    envOr("USERRELAY_URL", "http://localhost:8080"),
		APIKey:     envOr("USERRELAY_ADMIN_KEY", ""),
	}

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "CLI operativa de userrelay (reconciliación directa, directorio, migraciones)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.ConfigPath, "config", o.ConfigPath, "ruta a config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&o.EnvFile, "env-file", o.EnvFile, "ruta a .env (si existe, se carga)")
	root.PersistentFlags().StringVar(&o.Out, "out", o.Out, "formato de salida: json|text")
	root.PersistentFlags().DurationVar(&o.Timeout, "timeout", o.Timeout, "timeout por operación")
	root.PersistentFlags().StringVar(&o.BaseURL, "url", o.BaseURL, "URL base del servicio (env USERRELAY_URL)")
	root.PersistentFlags().StringVar(&o.APIKey, "admin-api-key", o.APIKey, "X-Admin-API-Key (env USERRELAY_ADMIN_KEY)")

	root.AddCommand(
		usersCommands(o)...,
	)
	root.AddCommand(
		tenantsCommand(o),
		sealCommand(o),
		migrateCommand(o),
		tokenCommand(o),
		pingCommand(o),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
