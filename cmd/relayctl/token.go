package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwtx "github.com/dropDatabas3/userrelay/internal/jwt"
)

func tokenCommand(o *opts) *cobra.Command {
	var (
		sub   string
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Emitir un bearer HS256 para las rutas admin (usa admin.jwt_secret)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			if cfg.Admin.JWTSecret == "" {
				return errors.New("admin.jwt_secret no está configurado")
			}
			if len(roles) == 0 && cfg.Admin.RequiredRole != "" {
				roles = []string{cfg.Admin.RequiredRole}
			}
			tok, err := jwtx.Issue([]byte(cfg.Admin.JWTSecret), cfg.Admin.JWTIssuer, sub, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "relayctl", "subject del token")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles (default: admin.required_role)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "vigencia")
	return cmd
}
