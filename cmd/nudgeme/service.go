package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/kardianos/service"
	"github.com/nudgeme/nudgeme/pkg/app"
	"github.com/spf13/cobra"
)

// program adapts the daemon loop to the service manager.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- app.RunContext(ctx, p.params) }()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// serviceArgs are the arguments the service manager starts nudgeme with.
// Paths are made absolute since services do not run from the caller's
// working directory.
func serviceArgs(params app.RunParams) ([]string, error) {
	args := []string{"service", "run"}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if params.DataDir != "" {
		abs, err := filepath.Abs(params.DataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", abs)
	}
	return args, nil
}

func newService(params app.RunParams, user bool) (service.Service, error) {
	args, err := serviceArgs(params)
	if err != nil {
		return nil, err
	}
	cfg := &service.Config{
		Name:        "nudgeme",
		DisplayName: "nudgeme assistant",
		Description: "Personal assistant daemon serving nudges, memories and chat.",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": user},
	}
	return service.New(&program{params: params}, cfg)
}

func serviceCmd() *cobra.Command {
	var user bool
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|status|run>",
		Short:     "Manage nudgeme as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: append(slices.Clone(service.ControlAction[:]), "status", "run"),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(runParams(cmd), user)
			if err != nil {
				return err
			}
			switch action := args[0]; action {
			case "run":
				return svc.Run()
			case "status":
				st, err := svc.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
				return nil
			default:
				if !slices.Contains(service.ControlAction[:], action) {
					return fmt.Errorf("unknown service action %q", action)
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&user, "user", true, "Install as a per-user service")
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
