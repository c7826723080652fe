package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stackmgr/internal/progress"
)

// Root returns the root command. --url defaults to $STACK_MANAGER_URL.
func Root() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:           "stackctl",
		Short:         "Install and inspect a self-hosted stack through its manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	def := os.Getenv("STACK_MANAGER_URL")
	if def == "" {
		def = "http://localhost:3000"
	}
	cmd.PersistentFlags().StringVar(&baseURL, "url", def, "Manager service base URL")

	cmd.AddCommand(Install(&baseURL))
	cmd.AddCommand(Status(&baseURL))
	return cmd
}

// Install returns the command that runs the installation and follows its
// progress stream.
func Install(baseURL *string) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Run the one-time stack installation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("STACK_ADMIN_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or STACK_ADMIN_PASSWORD) are required")
			}
			return runInstall(cmd.Context(), http.DefaultClient, *baseURL, email, password, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Administrator email")
	cmd.Flags().StringVar(&password, "password", "", "Administrator password")
	return cmd
}

// Status returns the command that reports whether the stack is installed.
func Status(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the stack is installed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return runStatus(ctx, http.DefaultClient, *baseURL, cmd.OutOrStdout())
		},
	}
}

func runInstall(ctx context.Context, client *http.Client, baseURL, email, password string, out io.Writer) error {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/setup", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("setup request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("setup request: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	r := progress.NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case ev.Log != nil:
			fmt.Fprintln(out, *ev.Log)
		case ev.Error != nil:
			return fmt.Errorf("installation failed: %s", *ev.Error)
		case ev.Result != nil:
			var res struct {
				Status string          `json:"status"`
				Auth   json.RawMessage `json:"auth"`
			}
			_ = json.Unmarshal(ev.Result, &res)
			if len(res.Auth) == 0 || string(res.Auth) == "null" {
				fmt.Fprintf(out, "installation %s (no admin session issued)\n", res.Status)
			} else {
				fmt.Fprintf(out, "installation %s\n", res.Status)
			}
		}
	}
}

func runStatus(ctx context.Context, client *http.Client, baseURL string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/status", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()
	var st struct {
		Installed bool   `json:"installed"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("status response: %w", err)
	}
	if st.Error != "" {
		fmt.Fprintf(out, "installed: %t (store error: %s)\n", st.Installed, st.Error)
		return nil
	}
	fmt.Fprintf(out, "installed: %t\n", st.Installed)
	return nil
}
