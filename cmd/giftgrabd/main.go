package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/qianqian121/GIFT-Grab/pkg/config"
	"github.com/qianqian121/GIFT-Grab/pkg/configdef"
	db "github.com/qianqian121/GIFT-Grab/pkg/database"
	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/qianqian121/GIFT-Grab/pkg/recorder"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videobackend"
	"github.com/tacusci/logging/v2"
	"github.com/takama/daemon"
)

const (
	name        = "giftgrabd"
	description = "GIFT-Grab service daemon which records configured video sources to disk"
)

type Service struct {
	daemon.Daemon
}

// Setup writes the default config file.
func (service *Service) Setup() (string, error) {
	log.Info("Setting up giftgrabd service...")

	err := config.DefaultCreator().Create()
	if err != nil {
		if !errors.Is(err, configdef.ErrConfigAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	return "Setup successful...", nil
}

func (service *Service) Manage() (string, error) {
	usage := "Usage: giftgrabd setup | install | remove | start | stop | status"

	if len(os.Args) > 1 {
		command := os.Args[1]
		switch command {
		case "setup":
			return service.Setup()
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	log.Info("Starting giftgrab daemon...")

	values, err := config.DefaultResolver().Resolve()
	if err != nil {
		return "", err
	}
	if values.Debug {
		log.SetLevel("debug")
	}

	server, err := recorder.NewServer(staticResolver(values), videobackend.Resolve(values.Backend))
	if err != nil {
		return "", err
	}

	catalog, err := db.OpenCatalog(values.Catalog)
	if err != nil {
		log.Error("Recordings will not be catalogued: %v", err)
	} else {
		defer catalog.Close()
		server.UseCatalog(catalog)
	}

	ctx, cancelStartup := context.WithCancel(context.Background())
	go startupServer(ctx, server)

	killSignal := <-interrupt
	fmt.Print("\r")
	log.Error("Received signal: %s", killSignal)

	cancelStartup()
	log.Info("Shutting down server...")
	<-server.Shutdown()

	return "Shutdown successful... BYE! 👋", nil
}

type staticResolver configdef.Values

func (r staticResolver) Resolve() (configdef.Values, error) {
	return configdef.Values(r), nil
}

func startupServer(ctx context.Context, server *recorder.Server) {
	logErrors(server.ConnectWithCancel(ctx))
	logErrors(server.SetupProcesses())
	logErrors(server.RunProcesses())
}

func logErrors(errs []error) {
	for _, err := range errs {
		log.Error(err.Error())
	}
}

func init() {
	log.SetLevel(os.Getenv("GIFTGRAB_LOGGING_LEVEL"))
}

func main() {
	daemonType := daemon.SystemDaemon
	if runtime.GOOS == "darwin" {
		daemonType = daemon.UserAgent
	}

	srv, err := daemon.New(name, description, daemonType)
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	logging.Info(status) //nolint
}
