package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/davecgh/go-spew/spew"
	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/senpro-it/grafana-dashboard-sync/mailer"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type GrafanaConfig struct {
	Url      string
	Username string
	Password string
}
type DashboardsConfig struct {
	Dir string
}
type MailConfig struct {
	Enabled  bool
	Host     string
	Username string
	Password string
	From     string
	To       string
}

type Config struct {
	Grafana    GrafanaConfig
	Dashboards DashboardsConfig
	Mail       MailConfig
}

var logger = log.NewWithOptions(os.Stdout, log.Options{
	Prefix:          "",
	ReportCaller:    false,
	ReportTimestamp: true,
})
var v = viper.NewWithOptions(viper.WithLogger(slog.New(logger)))

func main() {
	// configure oops
	oops.SourceFragmentsHidden = false

	// Local overrides for development.
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env")
	}

	// Configure viper
	pflag.String("grafana.url", "http://localhost:3000/api", "Grafana endpoint")
	pflag.String("grafana.user", "admin", "Grafana Username (BasicAuth)")
	pflag.String("grafana.pass", "admin", "Grafana Password (BasicAuth)")
	pflag.String("dashboards.dir", filepath.Join("grafana", "provisioning", "dashboards"), "Directory holding the dashboard JSON files")
	pflag.Bool("mail.enabled", false, "Send a run summary via mail")
	pflag.String("mail.host", "", "SMTP host for the run summary")
	pflag.String("mail.user", "", "SMTP username")
	pflag.String("mail.pass", "", "SMTP password")
	pflag.String("mail.from", "", "Summary mail sender")
	pflag.String("mail.to", "", "Summary mail recipient")
	pflag.Bool("verbose", false, "Enable debug logs")
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("provisioner")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("gds")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("No config file found; using just ENV.")
		} else {
			err := oops.Wrap(err)
			logger.Fatal(err.Error(), "error", err)
		}
	}

	// Import the config
	config := Config{
		Grafana: GrafanaConfig{
			Url:      v.GetString("grafana.url"),
			Username: v.GetString("grafana.user"),
			Password: v.GetString("grafana.pass"),
		},
		Dashboards: DashboardsConfig{
			Dir: v.GetString("dashboards.dir"),
		},
		Mail: MailConfig{
			Enabled:  v.GetBool("mail.enabled"),
			Host:     v.GetString("mail.host"),
			Username: v.GetString("mail.user"),
			Password: v.GetString("mail.pass"),
			From:     v.GetString("mail.from"),
			To:       v.GetString("mail.to"),
		},
	}
	if v.GetBool("verbose") {
		logger.SetLevel(log.DebugLevel)
	}

	logger.Info("Configuration loaded!", "version", Version)

	// Mirror of the old ctrl-c behavior: say so, leave with a failure code.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		<-interrupts
		logger.Warn("Sync interrupted")
		os.Exit(1)
	}()

	// Step 0: Open Grafana
	grafana, err := MakeGrafanaClient(
		config.Grafana.Url,
		config.Grafana.Username,
		config.Grafana.Password,
	)
	if err != nil {
		logger.Fatal(err.Error(), "error", err)
	}

	// Step 1: Build the catalog
	catalog := ProductionCatalog(config.Dashboards.Dir)
	logger.Debug(spew.Sdump(catalog))

	// Step 2: Sync
	provisioner := NewProvisioner(grafana, catalog)
	ok := provisioner.Run()

	if config.Mail.Enabled {
		sendSummary(config.Mail, provisioner, ok)
	}

	if !ok {
		logger.Error("Production dashboard sync failed!")
		os.Exit(1)
	}
	logger.Info("All production dashboards are now available in Grafana!", "url", config.Grafana.Url)
}

func sendSummary(cfg MailConfig, provisioner *Provisioner, ok bool) {
	m := &mailer.Mailer{
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}

	subject := "Dashboard sync succeeded"
	if !ok {
		subject = "Dashboard sync FAILED"
	}
	body := fmt.Sprintf(
		"Deployed %d of %d dashboards (%d failed).",
		provisioner.Deployed,
		len(provisioner.catalog),
		provisioner.Failed,
	)

	if _, err := m.Send(cfg.To, subject, body); err != nil {
		logger.Error("Could not send summary mail", "error", err)
	}
}
