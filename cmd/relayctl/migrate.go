package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/userrelay/internal/app"
	"github.com/dropDatabas3/userrelay/internal/infra/pgsql"
	"github.com/dropDatabas3/userrelay/internal/migrate"
)

func migrateCommand(o *opts) *cobra.Command {
	var (
		dsn    string
		tenant string
		status bool
	)
	cmd := &cobra.Command{
		Use:   "migrate <directory|backend>",
		Short: "Aplicar las migraciones embebidas (directorio de tenants o backend postgres de un tenant)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, ok := migrate.SetByName(strings.ToLower(args[0]))
			if !ok {
				return fmt.Errorf("set desconocido %q (directory|backend)", args[0])
			}
			cfg, err := o.load()
			if err != nil {
				return err
			}
			ctx, cancel := o.ctx(cmd.Context())
			defer cancel()

			var password string
			switch {
			case dsn != "":
			case set.Name == migrate.Directory.Name:
				dsn = cfg.Directory.Postgres.DSN
			case tenant != "":
				// El backend del tenant sale del directorio; la key es la password.
				dir, err := app.OpenDirectory(ctx, cfg)
				if err != nil {
					return err
				}
				rec, err := dir.Resolve(ctx, tenant)
				_ = dir.Close()
				if err != nil {
					return err
				}
				dsn, password = rec.BackendURL, rec.BackendKey
			}
			if dsn == "" {
				return errors.New("sin DSN: usar --dsn o --tenant")
			}

			pool, err := pgsql.Open(ctx, dsn, pgsql.PoolOptions{Password: password, MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()
			m := migrate.New(pool, set)

			if status {
				pending, err := m.Pending(ctx)
				if err != nil {
					return err
				}
				o.print(map[string]any{"set": set.Name, "pending": pending}, func(w io.Writer) {
					fmt.Fprintf(w, "set\t%s\npending\t%v\n", set.Name, pending)
				})
				return nil
			}

			res, err := m.Up(ctx)
			if err != nil {
				return err
			}
			o.print(res, func(w io.Writer) {
				fmt.Fprintf(w, "set\t%s\napplied\t%v\nskipped\t%v\nduration\t%s\n", set.Name, res.Applied, res.Skipped, res.Duration)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "DSN postgres explícito")
	cmd.Flags().StringVar(&tenant, "tenant", "", "resolver el backend postgres de este tenant (solo set backend)")
	cmd.Flags().BoolVar(&status, "status", false, "solo listar versiones pendientes")
	return cmd
}
