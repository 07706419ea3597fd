//go:build windows

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"tryon_backend/core"
	"tryon_backend/logging"

	"github.com/kardianos/service"
	"go.uber.org/zap"
)

// serviceStopTimeout bounds how long Stop waits for run to return.
const serviceStopTimeout = 90 * time.Second

// program runs the backend under the Windows service manager.
type program struct {
	logger *logging.Logger
	cancel context.CancelFunc
	exit   chan struct{}
	code   int
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.exit = make(chan struct{})

	go func() {
		defer close(p.exit)
		p.code = run(ctx, p.logger)
		if p.code != core.ExitCodeSuccess {
			p.logger.Error("Backend exited", zap.String("code", core.ExitCodeName(p.code)))
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	select {
	case <-p.exit:
		return nil
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

func serviceConfig() *service.Config {
	return &service.Config{
		Name:        "TryOnBackend",
		DisplayName: "Virtual Try-On Backend",
		Description: "Composes outfit images for the virtual try-on browser extension",
		Option: service.KeyValue{
			"StartType": "automatic",
		},
	}
}

func newService(logger *logging.Logger) (service.Service, *program, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	prg := &program{logger: logger}
	s, err := service.New(prg, serviceConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, prg, nil
}

// RunAsService runs the backend under the service manager. It returns false
// when the process was started interactively.
func RunAsService(logger *logging.Logger) (bool, error) {
	if service.Interactive() {
		return false, nil
	}
	s, prg, err := newService(logger)
	if err != nil {
		return false, err
	}
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("service run failed: %w", err)
	}
	if prg.code != core.ExitCodeSuccess {
		return true, fmt.Errorf("backend exited with %s", core.ExitCodeName(prg.code))
	}
	return true, nil
}

func printServiceUsage() {
	fmt.Println("Usage: tryon-backend.exe <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  install    Install the backend as a Windows service")
	fmt.Println("  uninstall  Remove the Windows service (alias: remove)")
	fmt.Println("  start      Start the service")
	fmt.Println("  stop       Stop the service")
	fmt.Println("  restart    Restart the service")
	fmt.Println("  status     Show the service status")
	fmt.Println()
	fmt.Println("Run without arguments to serve in the foreground.")
}

// HandleServiceCommand runs a service management command from args and
// reports whether one was handled.
func HandleServiceCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}

	cmd := args[1]
	switch cmd {
	case "help", "-h", "--help", "-help":
		printServiceUsage()
		return true
	case "install", "uninstall", "remove", "start", "stop", "restart", "status":
	default:
		return false
	}

	s, _, err := newService(nil)
	if err == nil {
		switch cmd {
		case "install":
			err = s.Install()
		case "uninstall", "remove":
			err = s.Uninstall()
		case "start":
			err = s.Start()
		case "stop":
			err = s.Stop()
		case "restart":
			err = s.Restart()
		case "status":
			var status service.Status
			status, err = s.Status()
			if err == nil {
				fmt.Println("Service status:", statusName(status))
			}
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", cmd, err)
		os.Exit(core.ExitCodeError)
	}
	if cmd != "status" {
		fmt.Printf("Service %s: ok\n", cmd)
	}
	return true
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
