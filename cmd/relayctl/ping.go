package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// pingCommand consulta /readyz de un servicio corriendo.
func pingCommand(o *opts) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Consultar /readyz del servicio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.ctx(cmd.Context())
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(o.BaseURL, "/")+"/readyz", nil)
			if err != nil {
				return err
			}
			if o.APIKey != "" {
				req.Header.Set("X-Admin-API-Key", o.APIKey)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

			var v any
			if json.Unmarshal(body, &v) != nil {
				v = map[string]any{"raw": string(body)}
			}
			o.print(v, func(w io.Writer) {
				fmt.Fprintf(w, "status\t%d\n%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
			})
			if resp.StatusCode/100 != 2 {
				return fmt.Errorf("ping fallo: status=%d", resp.StatusCode)
			}
			return nil
		},
	}
}
