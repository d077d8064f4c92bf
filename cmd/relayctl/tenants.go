package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/userrelay/internal/app"
	"github.com/dropDatabas3/userrelay/internal/directory"
	fsdir "github.com/dropDatabas3/userrelay/internal/directory/fs"
	pgdir "github.com/dropDatabas3/userrelay/internal/directory/pg"
	"github.com/dropDatabas3/userrelay/internal/security/secretbox"
	"github.com/dropDatabas3/userrelay/internal/util"
	"github.com/dropDatabas3/userrelay/internal/validation"
)

// tenantView es lo que se muestra de un registro; la key nunca sale en claro.
type tenantView struct {
	TenantID   string `json:"tenant_id"`
	Name       string `json:"name,omitempty"`
	BackendURL string `json:"backend_url"`
	Key        string `json:"key"`
	Driver     string `json:"driver,omitempty"`
	Disabled   bool   `json:"disabled,omitempty"`
}

func view(r directory.TenantRecord) tenantView {
	key := "-"
	switch {
	case r.BackendKeyEnc != "":
		key = "sealed"
	case r.BackendKey != "":
		key = util.MaskSecret(r.BackendKey)
	}
	return tenantView{
		TenantID:   r.TenantID,
		Name:       r.Name,
		BackendURL: util.RedactURL(r.BackendURL),
		Key:        key,
		Driver:     r.Driver,
		Disabled:   r.Disabled,
	}
}

func tenantsCommand(o *opts) *cobra.Command {
	cmd := &cobra.Command{Use: "tenants", Short: "Operaciones sobre el directorio de tenants"}

	list := &cobra.Command{
		Use:   "list",
		Short: "Listar tenants registrados",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			ctx, cancel := o.ctx(cmd.Context())
			defer cancel()
			dir, err := app.OpenDirectory(ctx, cfg)
			if err != nil {
				return err
			}
			defer dir.Close()

			l, ok := dir.Inner.(directory.Lister)
			if !ok {
				return fmt.Errorf("el driver %q no soporta list", cfg.Directory.Driver)
			}
			recs, err := l.List(ctx)
			if err != nil {
				return err
			}
			views := make([]tenantView, 0, len(recs))
			for _, r := range recs {
				views = append(views, view(r))
			}
			o.print(views, func(w io.Writer) {
				fmt.Fprintln(w, "TENANT\tNAME\tBACKEND\tKEY\tDISABLED")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", v.TenantID, v.Name, v.BackendURL, v.Key, v.Disabled)
				}
			})
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Resolver un tenant como lo haría el relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			ctx, cancel := o.ctx(cmd.Context())
			defer cancel()
			dir, err := app.OpenDirectory(ctx, cfg)
			if err != nil {
				return err
			}
			defer dir.Close()

			rec, err := dir.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			v := view(*rec)
			o.print(v, func(w io.Writer) {
				fmt.Fprintf(w, "tenant\t%s\nname\t%s\nbackend\t%s\nkey\t%s\n", v.TenantID, v.Name, v.BackendURL, v.Key)
			})
			return nil
		},
	}

	var (
		rec     directory.TenantRecord
		sealKey bool
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Registrar o actualizar un tenant (drivers fs y postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.TenantID = strings.TrimSpace(rec.TenantID)
			if rec.TenantID == "" {
				return errors.New("--id es requerido")
			}
			if !validation.ValidBackendURL(rec.BackendURL) {
				return fmt.Errorf("--backend-url inválida: %q", rec.BackendURL)
			}
			cfg, err := o.load()
			if err != nil {
				return err
			}
			if sealKey && rec.BackendKey != "" {
				box, err := secretbox.New(cfg.Security.SecretBoxKey)
				if err != nil {
					return fmt.Errorf("--seal requiere security.secretbox_key: %w", err)
				}
				enc, err := box.Seal(rec.BackendKey)
				if err != nil {
					return err
				}
				rec.BackendKeyEnc, rec.BackendKey = enc, ""
			}

			ctx, cancel := o.ctx(cmd.Context())
			defer cancel()
			dir, err := app.OpenDirectory(ctx, cfg)
			if err != nil {
				return err
			}
			defer dir.Close()

			switch inner := dir.Inner.(type) {
			case *pgdir.Directory:
				err = inner.Upsert(ctx, rec)
			case *fsdir.Directory:
				var recs []directory.TenantRecord
				if _, statErr := os.Stat(cfg.Directory.FS.Path); statErr == nil {
					if recs, err = inner.List(ctx); err != nil {
						return err
					}
				}
				err = inner.Write(replaceTenant(recs, rec))
			default:
				return fmt.Errorf("el driver %q es de solo lectura", cfg.Directory.Driver)
			}
			if err != nil {
				return err
			}
			o.print(view(rec), func(w io.Writer) { fmt.Fprintf(w, "ok\t%s\n", rec.TenantID) })
			return nil
		},
	}
	put.Flags().StringVar(&rec.TenantID, "id", "", "ID del tenant (proyecto)")
	put.Flags().StringVar(&rec.Name, "name", "", "nombre visible")
	put.Flags().StringVar(&rec.BackendURL, "backend-url", "", "URL del backend (https://..., postgres://..., mem://...)")
	put.Flags().StringVar(&rec.BackendKey, "backend-key", "", "key de servicio del backend")
	put.Flags().StringVar(&rec.Driver, "driver", "", "driver de backend explícito (opcional)")
	put.Flags().BoolVar(&rec.Disabled, "disabled", false, "registrar deshabilitado")
	put.Flags().BoolVar(&sealKey, "seal", true, "sellar la key con security.secretbox_key")

	cmd.AddCommand(list, get, put)
	return cmd
}

// replaceTenant reemplaza todas las filas con el mismo id por rec.
func replaceTenant(recs []directory.TenantRecord, rec directory.TenantRecord) []directory.TenantRecord {
	out := make([]directory.TenantRecord, 0, len(recs)+1)
	for _, r := range recs {
		if strings.TrimSpace(r.TenantID) != rec.TenantID {
			out = append(out, r)
		}
	}
	return append(out, rec)
}
