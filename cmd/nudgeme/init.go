package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/nudgeme/nudgeme/internal/config"
	"github.com/nudgeme/nudgeme/internal/nudge"
	"github.com/nudgeme/nudgeme/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initAnswers collects what the setup wizard asks.
type initAnswers struct {
	UserName   string
	Timezone   string
	QuietHours string
	Gemini     bool
	Remote     bool
	Bind       string
	Token      string
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = app.DefaultConfigPath()
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := initAnswers{
				Timezone: time.Local.String(),
				Bind:     "127.0.0.1:8420",
				Gemini:   true,
			}
			if err := askInit(&answers); err != nil {
				return err
			}

			raw, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			if answers.Gemini {
				fmt.Fprintln(cmd.OutOrStdout(), "Export GEMINI_API_KEY before running `nudgeme start`.")
			}
			if answers.Remote {
				fmt.Fprintln(cmd.OutOrStdout(), "Export NUDGEME_POSTGRES_DSN before running `nudgeme start`.")
			}
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
	return cmd
}

func askInit(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What should the assistant call you?").
				Value(&a.UserName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("a name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Timezone").
				Description("IANA name, e.g. Europe/Paris").
				Value(&a.Timezone).
				Validate(func(s string) error {
					_, err := time.LoadLocation(s)
					return err
				}),
			huh.NewInput().
				Title("Quiet hours").
				Description("HH:MM-HH:MM, leave empty for none").
				Value(&a.QuietHours).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					_, err := nudge.ParseDailyWindow(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Use Gemini for replies?").
				Value(&a.Gemini),
			huh.NewConfirm().
				Title("Mirror memories to PostgreSQL?").
				Value(&a.Remote),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Value(&a.Bind),
			huh.NewInput().
				Title("Gateway bearer token").
				Description("Leave empty to keep the API open on the listen address").
				EchoMode(huh.EchoModePassword).
				Value(&a.Token),
		),
	)
	return form.Run()
}

// renderConfig turns wizard answers into a config file and checks that it
// validates.
func renderConfig(a initAnswers) ([]byte, error) {
	assistant := map[string]any{"user_name": strings.TrimSpace(a.UserName)}
	if a.Timezone != "" {
		assistant["timezone"] = a.Timezone
	}
	if a.QuietHours != "" {
		assistant["quiet_hours"] = a.QuietHours
	}

	gw := map[string]any{"bind": a.Bind}
	if a.Token != "" {
		gw["auth"] = map[string]any{"bearer_token": a.Token}
	}
	modules := map[string]any{
		app.DefaultStorageModule: map[string]any{},
		app.DefaultGatewayModule: gw,
	}
	if a.Gemini {
		modules["provider.gemini"] = map[string]any{"api_key_env": "GEMINI_API_KEY"}
	}
	if a.Remote {
		modules["memory.postgres"] = map[string]any{"dsn_env": "NUDGEME_POSTGRES_DSN"}
	}

	raw, err := yaml.Marshal(map[string]any{
		"version":   "1",
		"assistant": assistant,
		"modules":   modules,
	})
	if err != nil {
		return nil, err
	}

	cfg, err := config.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return raw, nil
}
