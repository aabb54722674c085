package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	Token     string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	var (
		baseURL = envOr("MORPH_URL", "http://localhost:8080")
		token   = envOr("MORPH_SESSION_TOKEN", "")
		out     = envOr("MORPH_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "morphctl",
		Short: "CLI cliente del runtime morphcore",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del runtime (env MORPH_URL)")
	root.PersistentFlags().StringVar(&token, "token", token, "Session token (env MORPH_SESSION_TOKEN)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{HTTP: &http.Client{Timeout: 30 * time.Second}}
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cl.BaseURL, cl.Token, cl.OutFormat = baseURL, token, out
	}

	// sessions create
	var sesConnector, sesOwner string
	var sesOps []string
	sessionCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Emitir un session token para una conexión",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sesConnector == "" || sesOwner == "" {
				return fmt.Errorf("--connector y --owner son requeridos")
			}
			b, _ := json.Marshal(map[string]any{
				"connectorId": sesConnector,
				"ownerId":     sesOwner,
				"operations":  sesOps,
			})
			status, body, err := cl.do("POST", "/sessions", b)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("create fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	sessionCreateCmd.Flags().StringVar(&sesConnector, "connector", "", "Id del connector (ej. hubspot)")
	sessionCreateCmd.Flags().StringVar(&sesOwner, "owner", "", "Id del owner/tenant")
	sessionCreateCmd.Flags().StringSliceVar(&sesOps, "operations", nil, "Operations habilitadas (ej. contact::list)")

	sessionsCmd := &cobra.Command{Use: "sessions", Short: "Manejo de session tokens"}
	sessionsCmd.AddCommand(sessionCreateCmd)

	// connections authorize
	var authScopes []string
	var authSettings []string
	var authRedirect string
	authorizeCmd := &cobra.Command{
		Use:   "authorize",
		Short: "Obtener la URL de autorización OAuth (requiere --token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := map[string]string{}
			for _, kv := range authSettings {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("setting inválido %q, esperaba clave=valor", kv)
				}
				settings[k] = v
			}
			b, _ := json.Marshal(map[string]any{
				"settings":    settings,
				"scopes":      authScopes,
				"redirectUrl": authRedirect,
			})
			status, body, err := cl.do("POST", "/connections/authorize", b)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("authorize fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	authorizeCmd.Flags().StringSliceVar(&authScopes, "scope", nil, "Scopes extra")
	authorizeCmd.Flags().StringSliceVar(&authSettings, "setting", nil, "Settings clave=valor (ej. subdomain=acme)")
	authorizeCmd.Flags().StringVar(&authRedirect, "redirect", "", "URL de retorno tras el callback")

	// connections proxy
	var pxMethod, pxPath, pxBody string
	proxyCmd := &cobra.Command{
		Use:   "proxy",
		Short: "Proxear una request autenticada al provider (requiere --token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pxPath == "" {
				return fmt.Errorf("--path es requerido")
			}
			payload := map[string]any{"method": pxMethod, "path": pxPath}
			if pxBody != "" {
				var v any
				if err := json.Unmarshal([]byte(pxBody), &v); err != nil {
					return fmt.Errorf("--body no es JSON: %w", err)
				}
				payload["body"] = v
			}
			b, _ := json.Marshal(payload)
			status, body, err := cl.do("POST", "/connections/proxy", b)
			if err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	proxyCmd.Flags().StringVar(&pxMethod, "method", "GET", "Método HTTP")
	proxyCmd.Flags().StringVar(&pxPath, "path", "", "Path relativo a la API del provider")
	proxyCmd.Flags().StringVar(&pxBody, "body", "", "Body JSON")

	// connections delete
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Borrar la conexión del token (requiere --token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("DELETE", "/connections", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("delete fallo: status=%d body=%s", status, string(body))
			}
			fmt.Println("ok")
			return nil
		},
	}

	connectionsCmd := &cobra.Command{Use: "connections", Short: "Operación de conexiones"}
	connectionsCmd.AddCommand(authorizeCmd)
	connectionsCmd.AddCommand(proxyCmd)
	connectionsCmd.AddCommand(deleteCmd)

	// webhooks subscribe / unsubscribe
	var whEvents []string
	subscribeCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Suscribir eventos model::trigger (requiere --token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _ := json.Marshal(map[string]any{"events": whEvents})
			status, body, err := cl.do("POST", "/connections/subscribe", b)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("subscribe fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	subscribeCmd.Flags().StringSliceVar(&whEvents, "event", nil, "Evento model::trigger (repetible)")

	var unWhEvents []string
	unsubscribeCmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Dar de baja eventos suscriptos (requiere --token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _ := json.Marshal(map[string]any{"events": unWhEvents})
			status, body, err := cl.do("POST", "/connections/unsubscribe", b)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("unsubscribe fallo: status=%d body=%s", status, string(body))
			}
			fmt.Println("ok")
			return nil
		},
	}
	unsubscribeCmd.Flags().StringSliceVar(&unWhEvents, "event", nil, "Evento model::trigger (repetible)")

	webhooksCmd := &cobra.Command{Use: "webhooks", Short: "Suscripción de webhooks"}
	webhooksCmd.AddCommand(subscribeCmd)
	webhooksCmd.AddCommand(unsubscribeCmd)

	root.AddCommand(sessionsCmd)
	root.AddCommand(connectionsCmd)
	root.AddCommand(webhooksCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
