package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quailyquaily/topicbridge/internal/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive Telegram updates over a webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}

			bind := strings.TrimSpace(flagOrViperString(cmd, "server-bind", "server.bind"))
			if bind == "" {
				bind = "127.0.0.1"
			}
			port := flagOrViperInt(cmd, "server-port", "server.port")
			if port <= 0 {
				port = 8788
			}
			secret := strings.TrimSpace(flagOrViperString(cmd, "server-webhook-secret", "server.webhook_secret"))

			sweepCtx, stopSweep := context.WithCancel(context.Background())
			defer stopSweep()
			startSweep(sweepCtx, a)

			mux := http.NewServeMux()
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"ok":   true,
					"time": time.Now().Format(time.RFC3339Nano),
				})
			})
			mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
					return
				}
				if secret != "" && !checkWebhookSecret(r, secret) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				// Acknowledge receipt regardless of internal outcome: an
				// unparseable body or a failed relay still answers 200 so
				// the platform does not redeliver forever.
				var update telegram.Update
				if err := json.NewDecoder(r.Body).Decode(&update); err == nil {
					a.orch.HandleUpdate(context.Background(), update)
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("OK"))
			})

			addr := bind + ":" + strconv.Itoa(port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			a.logger.Info("webhook_start", "addr", addr, "secret_set", secret != "")
			return srv.ListenAndServe()
		},
	}

	addCommonFlags(cmd)
	cmd.Flags().String("server-bind", "127.0.0.1", "Bind address (default: 127.0.0.1).")
	cmd.Flags().Int("server-port", 8788, "HTTP port to listen on.")
	cmd.Flags().String("server-webhook-secret", "", "Expected X-Telegram-Bot-Api-Secret-Token value (empty disables the check).")

	return cmd
}

func checkWebhookSecret(r *http.Request, secret string) bool {
	got := strings.TrimSpace(r.Header.Get("X-Telegram-Bot-Api-Secret-Token"))
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
