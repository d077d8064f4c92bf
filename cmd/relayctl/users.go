package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/userrelay/internal/app"
	"github.com/dropDatabas3/userrelay/internal/reconcile"
)

// readPayload acepta --data inline o --file (con "-" = stdin).
func readPayload(data, file string) (map[string]any, error) {
	var raw []byte
	switch {
	case data != "" && file != "":
		return nil, errors.New("usar --data o --file, no ambos")
	case data != "":
		raw = []byte(data)
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, errors.New("--data o --file es requerido")
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("payload JSON inválido: %w", err)
	}
	if payload == nil {
		return nil, errors.New("el payload debe ser un objeto JSON")
	}
	return payload, nil
}

func usersCommands(o *opts) []*cobra.Command {
	var (
		tenant, data, file   string
		schemaName           string
		table, conflictKey   string
		deleteTenant, userID string
	)

	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Crear o actualizar un usuario en el backend del tenant (sin pasar por HTTP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tenant) == "" {
				return errors.New("--tenant es requerido")
			}
			if (table == "") != (conflictKey == "") {
				return errors.New("--table y --conflict-key van juntos")
			}
			payload, err := readPayload(data, file)
			if err != nil {
				return err
			}
			cfg, err := o.load()
			if err != nil {
				return err
			}

			schema, ok := app.Schemas(cfg)(schemaName)
			if table != "" {
				schema = reconcile.Schema{Name: "custom", Table: table, ConflictKey: conflictKey}
				ok = true
			}
			if !ok {
				return fmt.Errorf("schema %q no existe", schemaName)
			}

			ctx, cancel := o.ctx(cmd.Context())
			defer cancel()
			core, err := app.NewCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer core.Close()

			res, err := core.Reconciler.Upsert(ctx, reconcile.Request{TenantID: tenant, Payload: payload, Schema: schema})
			if err != nil {
				return err
			}
			o.print(res, func(w io.Writer) {
				action := "actualizado"
				if res.Created {
					action = "creado"
				}
				fmt.Fprintf(w, "user_id\t%s\n", res.IdentityID)
				fmt.Fprintf(w, "result\t%s (%s)\n", action, schema.Table)
			})
			return nil
		},
	}
	upsert.Flags().StringVar(&tenant, "tenant", "", "ID del tenant (proyecto)")
	upsert.Flags().StringVar(&data, "data", "", "payload JSON inline")
	upsert.Flags().StringVar(&file, "file", "", "archivo con el payload JSON (- = stdin)")
	upsert.Flags().StringVar(&schemaName, "schema", "default", "schema con nombre de la config")
	upsert.Flags().StringVar(&table, "table", "", "tabla de perfil explícita (requiere --conflict-key)")
	upsert.Flags().StringVar(&conflictKey, "conflict-key", "", "columna de conflicto explícita")

	del := &cobra.Command{
		Use:   "delete",
		Short: "Borrar perfil e identidad de un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(deleteTenant) == "" || strings.TrimSpace(userID) == "" {
				return errors.New("--tenant y --user son requeridos")
			}
			cfg, err := o.load()
			if err != nil {
				return err
			}
			ctx, cancel := o.ctx(cmd.Context())
			defer cancel()
			core, err := app.NewCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer core.Close()

			if err := core.Reconciler.Delete(ctx, deleteTenant, userID); err != nil {
				return err
			}
			o.print(map[string]any{"deleted": true, "userId": userID}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted\t%s\n", userID)
			})
			return nil
		},
	}
	del.Flags().StringVar(&deleteTenant, "tenant", "", "ID del tenant (proyecto)")
	del.Flags().StringVar(&userID, "user", "", "ID de la identidad")

	return []*cobra.Command{upsert, del}
}
