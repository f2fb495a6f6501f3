package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the running server's configuration and sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminRequest(cmd, http.MethodGet, "/admin/v1/state", 5*time.Second)
		},
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read the configuration file on the running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminRequest(cmd, http.MethodPost, "/admin/v1/reload", 10*time.Second)
		},
	}
}

func adminRequest(cmd *cobra.Command, method, path string, timeout time.Duration) error {
	baseURL, _ := cmd.Flags().GetString("url")
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path

	req, err := http.NewRequestWithContext(cmd.Context(), method, u, nil)
	if err != nil {
		return eris.Wrap(err, "request")
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return eris.Wrap(err, "request")
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return eris.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
