package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/userrelay/internal/security/secretbox"
)

func sealCommand(o *opts) *cobra.Command {
	var (
		key    string
		open   bool
		genKey bool
	)
	cmd := &cobra.Command{
		Use:   "seal [valor]",
		Short: "Sellar (o abrir con --open) una key de backend con secretbox",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if genKey {
				b := make([]byte, 32)
				if _, err := rand.Read(b); err != nil {
					return err
				}
				fmt.Println(base64.StdEncoding.EncodeToString(b))
				return nil
			}
			if key == "" {
				cfg, err := o.load()
				if err != nil {
					return err
				}
				key = cfg.Security.SecretBoxKey
			}
			box, err := secretbox.New(key)
			if err != nil {
				return err
			}

			val := ""
			if len(args) == 1 {
				val = args[0]
			} else {
				sc := bufio.NewScanner(os.Stdin)
				if sc.Scan() {
					val = sc.Text()
				}
			}
			val = strings.TrimSpace(val)
			if val == "" {
				return errors.New("valor vacío (argumento o stdin)")
			}

			var out string
			if open {
				out, err = box.Open(val)
			} else {
				out, err = box.Seal(val)
			}
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", os.Getenv("SECRETBOX_MASTER_KEY"), "clave maestra (default: security.secretbox_key)")
	cmd.Flags().BoolVar(&open, "open", false, "abrir un valor sellado en vez de sellar")
	cmd.Flags().BoolVar(&genKey, "gen-key", false, "generar una clave maestra nueva y salir")
	return cmd
}
