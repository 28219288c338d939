package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/applytrail/internal/llm"
	"github.com/ppiankov/applytrail/internal/model"
)

var checkAll bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify Gmail access, storage and the inference backend",
	Long: `Check reports whether a Gmail token is stored, whether the configured
storage backends answer, and whether the selected inference backend accepts
the configured credential. With --all every backend that has a credential is
probed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			fmt.Printf("✗ storage: %v\n", err)
			return err
		}
		defer a.close()
		fmt.Printf("✓ storage: seen=%s records=%s\n", a.cfg.Storage.SeenBackend, a.cfg.Storage.RecordsBackend)

		if a.auth.Authenticated() {
			fmt.Println("✓ gmail: token stored")
		} else {
			fmt.Println("✗ gmail: not authenticated (run 'applytrail auth login')")
		}

		settings, err := a.stores.Settings.Load(ctx)
		if err != nil {
			return err
		}

		backends := []string{settings.Backend}
		if checkAll {
			backends = model.Backends
		}

		failed := 0
		for _, backend := range backends {
			if !llm.HasCredential(a.cfg.LLM, settings, backend) {
				if !checkAll {
					fmt.Printf("✗ %s: no API key\n", backend)
					failed++
				}
				continue
			}
			client, err := a.client(settings, backend)
			if err != nil {
				fmt.Printf("✗ %s: %v\n", backend, err)
				failed++
				continue
			}
			if err := client.Ping(ctx); err != nil {
				fmt.Printf("✗ %s: %v\n", backend, err)
				failed++
				continue
			}
			marker := ""
			if backend == settings.Backend {
				marker = " (selected)"
			}
			fmt.Printf("✓ %s%s\n", backend, marker)
		}

		if failed > 0 {
			return fmt.Errorf("%d backend check(s) failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "probe every backend that has a credential")
}
