package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	formatter "github.com/bluexlab/logrus-formatter"
	"github.com/prostore-ios/sideloader/pkg/config"
	"github.com/prostore-ios/sideloader/pkg/sideload/api"
	"github.com/prostore-ios/sideloader/pkg/sideload/identity"
	"github.com/prostore-ios/sideloader/pkg/sideload/install"
	"github.com/prostore-ios/sideloader/pkg/sideload/model"
	"github.com/prostore-ios/sideloader/pkg/sideload/pipeline"
	"github.com/prostore-ios/sideloader/pkg/sideload/profile"
	"github.com/prostore-ios/sideloader/pkg/sideload/transform"
	"github.com/sirupsen/logrus"
)

const appName string = "sideloader"

type CLI struct {
	Server struct {
	} `cmd:"" help:"Run the sideload server"`
	Verify struct {
		Identity   string `arg:"" help:"Path to the PKCS#12 identity container" type:"existingfile"`
		Profile    string `arg:"" help:"Path to the provisioning profile" type:"existingfile"`
		Passphrase string `short:"p" help:"Identity passphrase"`
	} `cmd:"" help:"Verify an identity container against a provisioning profile"`
	Install struct {
		URL        string `arg:"" help:"URL of the package archive"`
		Identity   string `arg:"" help:"Path to the PKCS#12 identity container" type:"existingfile"`
		Profile    string `arg:"" help:"Path to the provisioning profile" type:"existingfile"`
		Passphrase string `short:"p" help:"Identity passphrase"`
	} `cmd:"" help:"Download, re-sign and install a package"`
	Config string `short:"c" long:"config" help:"Path to the configuration file" type:"existingfile" default:"config.yaml"`
}

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	SignerCommand string `yaml:"signer_command"`
	Installer     struct {
		Command       string `yaml:"command"`
		PairingRecord string `yaml:"pairing_record"`
	} `yaml:"installer"`
	ScratchDir   string                `yaml:"scratch_dir"`
	StageWeights pipeline.StageWeights `yaml:"stage_weights"`
}

type App struct{}

func (a *App) Run() {
	formatter.InitLogger()

	var cli CLI
	ctx := kong.Parse(&cli, kong.UsageOnError())
	switch ctx.Command() {
	case "server":
		a.runServer(cli)
	case "verify <identity> <profile>":
		a.runVerify(cli)
	case "install <url> <identity> <profile>":
		a.runInstall(cli)
	default:
	}
}

func (a *App) loadConfig(cli CLI) Config {
	var appConfig Config
	if err := config.FromFile(cli.Config, &appConfig); err != nil {
		logrus.Errorf("failed to load config: %v", err)
		os.Exit(128)
	}
	return appConfig
}

func (a *App) runServer(cli CLI) {
	appConfig := a.loadConfig(cli)

	restConfig := api.RestServerConfig{
		LocalAddress:  net.JoinHostPort(appConfig.Server.Host, strconv.Itoa(appConfig.Server.Port)),
		SignerCommand: appConfig.SignerCommand,
		ScratchDir:    appConfig.ScratchDir,
		StageWeights:  appConfig.StageWeights,
	}
	installer := install.NewExecInstaller(
		appConfig.Installer.Command,
		install.WithPairingRecordPath(appConfig.Installer.PairingRecord),
	)

	restServer, err := api.NewRestServerWithConfig(restConfig, installer)
	if err != nil {
		logrus.Errorf("failed to create rest server: %v", err)
		os.Exit(128)
	}

	logrus.Infof("starting %s server on %s", appName, restConfig.LocalAddress)
	go func() {
		if err := restServer.Run(); err != nil {
			logrus.Errorf("failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server......")
	_ = restServer.Close(context.Background())
}

func (a *App) runVerify(cli CLI) {
	identityRaw, err := os.ReadFile(cli.Verify.Identity)
	if err != nil {
		logrus.Errorf("failed to read identity: %v", err)
		os.Exit(128)
	}
	profileRaw, err := os.ReadFile(cli.Verify.Profile)
	if err != nil {
		logrus.Errorf("failed to read profile: %v", err)
		os.Exit(128)
	}

	matcher := identity.NewMatcher()
	result, err := matcher.Verify(context.Background(), identity.VerifyRequest{
		Identity:   identityRaw,
		Passphrase: cli.Verify.Passphrase,
		Profile:    profileRaw,
	})
	if err != nil {
		logrus.Errorf("verification failed: %v", err)
		os.Exit(1)
	}

	if name := profile.DisplayName(profileRaw); name != "" {
		logrus.Infof("Profile: %s", name)
	}
	if expiry := profile.ExpiresAt(profileRaw); expiry != nil {
		logrus.Infof("Profile expires at %s", expiry)
	}

	switch result {
	case model.MatchResultMatched:
		logrus.Info("Identity matches the profile")
	case model.MatchResultWrongPassphrase:
		logrus.Warn("Wrong passphrase for the identity container")
		os.Exit(1)
	case model.MatchResultNoCertificate:
		logrus.Warn("No certificate in the profile matches the identity")
		os.Exit(1)
	}
}

func (a *App) runInstall(cli CLI) {
	appConfig := a.loadConfig(cli)

	identityRaw, err := os.ReadFile(cli.Install.Identity)
	if err != nil {
		logrus.Errorf("failed to read identity: %v", err)
		os.Exit(128)
	}
	profileRaw, err := os.ReadFile(cli.Install.Profile)
	if err != nil {
		logrus.Errorf("failed to read profile: %v", err)
		os.Exit(128)
	}

	installer := install.NewExecInstaller(
		appConfig.Installer.Command,
		install.WithPairingRecordPath(appConfig.Installer.PairingRecord),
	)
	orchestratorOpts := []pipeline.OrchestratorOption{
		pipeline.WithSigner(transform.NewExecSigner(appConfig.SignerCommand)),
		pipeline.WithInstaller(installer),
		pipeline.WithScratchBase(appConfig.ScratchDir),
	}
	if appConfig.StageWeights != (pipeline.StageWeights{}) {
		orchestratorOpts = append(orchestratorOpts, pipeline.WithStageWeights(appConfig.StageWeights))
	}
	orchestrator := pipeline.NewOrchestrator(orchestratorOpts...)

	job, err := orchestrator.Start(context.Background(), pipeline.JobRequest{
		SourceURL:  cli.Install.URL,
		Identity:   identityRaw,
		Passphrase: cli.Install.Passphrase,
		Profile:    profileRaw,
	})
	if err != nil {
		logrus.Errorf("failed to start job: %v", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		job.Cancel()
	}()

	for event := range job.Events() {
		switch event.Type {
		case model.JobEventProgress:
			logrus.Infof("[%3.0f%%] %s", event.Progress*100, event.Stage)
		case model.JobEventStatus:
			logrus.Info(event.Message)
		case model.JobEventTerminal:
			if event.Outcome == model.JobStateSucceeded {
				logrus.Info("Installation succeeded")
			} else if event.Outcome == model.JobStateCancelled {
				logrus.Warn("Installation cancelled")
				os.Exit(1)
			} else {
				logrus.Errorf("Installation failed: %s", event.Error)
				os.Exit(1)
			}
		}
	}
}

func main() {
	app := App{}
	app.Run()
}
