package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ruteri/device-activation-backend/activation"
	"github.com/ruteri/device-activation-backend/api/activationhandler"
	"github.com/ruteri/device-activation-backend/api/adminhandler"
	"github.com/ruteri/device-activation-backend/cmd/flags"
	"github.com/ruteri/device-activation-backend/cryptoutils"
	"github.com/ruteri/device-activation-backend/devicestore"
	"github.com/ruteri/device-activation-backend/events"
	"github.com/ruteri/device-activation-backend/httpserver"
	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/ruteri/device-activation-backend/notify"
	"github.com/ruteri/device-activation-backend/registry"
	"github.com/ruteri/device-activation-backend/storage"
	"github.com/urfave/cli/v2"
)

func env(name string) []string {
	return []string{flags.EnvPrefix + name}
}

var serverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		Usage:   "address to listen on for the device API",
		EnvVars: env("LISTEN_ADDR"),
	},
	&cli.StringFlag{
		Name:    "admin-listen-addr",
		Value:   "127.0.0.1:8081",
		Usage:   "address to listen on for the operator API. If empty, operator routes are served on listen-addr",
		EnvVars: env("ADMIN_LISTEN_ADDR"),
	},
	&cli.StringFlag{
		Name:    "db-driver",
		Value:   devicestore.DriverSQLite,
		Usage:   "database driver: 'sqlite' or 'postgres'",
		EnvVars: env("DB_DRIVER"),
	},
	&cli.StringFlag{
		Name:    "db-dsn",
		Value:   "activation.db",
		Usage:   "database connection string",
		EnvVars: env("DB_DSN"),
	},
	&cli.BoolFlag{
		Name:    "db-migrate",
		Value:   true,
		Usage:   "create or update the schema on startup",
		EnvVars: env("DB_MIGRATE"),
	},
	&cli.StringSliceFlag{
		Name:    "secret-store",
		Value:   cli.NewStringSlice("file:///var/lib/activation/secrets"),
		Usage:   "shared secret store URI (file://, s3://, vault://). Repeat for fallbacks",
		EnvVars: env("SECRET_STORES"),
	},
	&cli.StringFlag{
		Name:    "registration-url",
		Usage:   "base URL of the credential-registration service",
		EnvVars: env("REGISTRATION_URL"),
	},
	&cli.StringFlag{
		Name:    "token-url",
		Usage:   "OAuth2 token endpoint of the credential-registration service",
		EnvVars: env("TOKEN_URL"),
	},
	&cli.StringFlag{
		Name:    "token-client-id",
		EnvVars: env("TOKEN_CLIENT_ID"),
	},
	&cli.StringFlag{
		Name:    "token-client-secret",
		EnvVars: env("TOKEN_CLIENT_SECRET"),
	},
	&cli.StringSliceFlag{
		Name:    "token-scope",
		EnvVars: env("TOKEN_SCOPES"),
	},
	&cli.StringFlag{
		Name:    "static-token",
		Usage:   "fixed bearer token for development, used when token-url is empty",
		EnvVars: env("STATIC_TOKEN"),
	},
	&cli.StringFlag{
		Name:    "profile-url",
		Usage:   "base URL of the user profile service. If empty, activation notifications are disabled",
		EnvVars: env("PROFILE_URL"),
	},
	&cli.StringFlag{
		Name:    "sms-url",
		Usage:   "base URL of the SMS gateway",
		EnvVars: env("SMS_URL"),
	},
	&cli.StringFlag{
		Name:    "sms-api-key",
		EnvVars: env("SMS_API_KEY"),
	},
	&cli.StringFlag{
		Name:    "sms-template",
		Value:   notify.DefaultActivationMessage,
		Usage:   "activation SMS text, %s is replaced by the device id",
		EnvVars: env("SMS_TEMPLATE"),
	},
	&cli.StringFlag{
		Name:    "amqp-url",
		Usage:   "AMQP broker URL for events. If empty, events stay in process",
		EnvVars: env("AMQP_URL"),
	},
	&cli.StringFlag{
		Name:    "amqp-exchange",
		Value:   events.DefaultExchange,
		EnvVars: env("AMQP_EXCHANGE"),
	},
	&cli.StringFlag{
		Name:    "event-source",
		Value:   "/device-activation",
		Usage:   "CloudEvents source attribute",
		EnvVars: env("EVENT_SOURCE"),
	},
	&cli.StringFlag{
		Name:    "lifecycle-topic",
		Value:   "device.lifecycle",
		Usage:   "topic for activation, provisioned-alive and deactivation events. Empty disables them",
		EnvVars: env("LIFECYCLE_TOPIC"),
	},
	&cli.StringFlag{
		Name:    "invalid-state-topic",
		Value:   "device.activation.rejected",
		EnvVars: env("INVALID_STATE_TOPIC"),
	},
	&cli.StringSliceFlag{
		Name:    "invalid-state-event-type",
		Usage:   "device type whose invalid-state rejections are published",
		EnvVars: env("INVALID_STATE_EVENT_TYPES"),
	},
	&cli.BoolFlag{
		Name:    "vin-enabled",
		Usage:   "require a completed VIN association before activation",
		EnvVars: env("VIN_ENABLED"),
	},
	&cli.BoolFlag{
		Name:    "device-validation",
		Usage:   "require deviceType and check it against allowed-device-type",
		EnvVars: env("DEVICE_VALIDATION"),
	},
	&cli.StringSliceFlag{
		Name:    "allowed-device-type",
		EnvVars: env("ALLOWED_DEVICE_TYPES"),
	},
	&cli.BoolFlag{
		Name:    "type-aware-issuance",
		Usage:   "derive the device id prefix from the device type",
		EnvVars: env("TYPE_AWARE_ISSUANCE"),
	},
	&cli.StringFlag{
		Name:    "default-prefix",
		Value:   activation.DefaultPrefix,
		EnvVars: env("DEFAULT_PREFIX"),
	},
	&cli.StringSliceFlag{
		Name:    "type-prefix",
		Usage:   "TYPE=XX device id prefix override",
		EnvVars: env("TYPE_PREFIXES"),
	},
	&cli.StringFlag{
		Name:    "qualifier-algorithm",
		Value:   cryptoutils.QualifierHMACSHA256,
		Usage:   "qualifier construction: " + cryptoutils.QualifierHMACSHA256 + " or " + cryptoutils.QualifierSHA256Concat,
		EnvVars: env("QUALIFIER_ALGORITHM"),
	},
}

func main() {
	app := &cli.App{
		Name:  "activation-server",
		Usage: "Serve the device activation API",
		Flags: append(append(serverFlags, flags.CommonFlags...), flags.LogServiceFlagFn("device-activation")),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			cfg, err := activationConfig(cCtx)
			if err != nil {
				logger.Error("Invalid activation configuration", "err", err)
				return err
			}

			db, err := devicestore.Open(devicestore.Config{
				Driver:      cCtx.String("db-driver"),
				DSN:         cCtx.String("db-dsn"),
				AutoMigrate: cCtx.Bool("db-migrate"),
			}, logger)
			if err != nil {
				logger.Error("Failed to open database", "err", err)
				return err
			}
			store := devicestore.NewGormStore(db)

			secrets, err := secretStore(cCtx, logger)
			if err != nil {
				logger.Error("Failed to create secret store", "err", err)
				return err
			}

			verifier, err := cryptoutils.NewQualifierVerifier(cfg.QualifierAlgorithm)
			if err != nil {
				logger.Error("Failed to create qualifier verifier", "err", err)
				return err
			}

			tokens, err := tokenSource(cCtx)
			if err != nil {
				logger.Error("Failed to configure token source", "err", err)
				return err
			}

			registrationURL := cCtx.String("registration-url")
			if registrationURL == "" {
				return errors.New("registration-url is required")
			}
			registration := registry.NewHTTPRegistrationClient(registrationURL, nil, logger)

			publisher, err := eventPublisher(cCtx, logger)
			if err != nil {
				logger.Error("Failed to create event publisher", "err", err)
				return err
			}

			var notifier activation.ActivationNotifier
			if profileURL := cCtx.String("profile-url"); profileURL != "" {
				notifier = notify.NewNotifier(
					notify.NewProfileClient(profileURL, nil),
					notify.NewSMSClient(cCtx.String("sms-url"), cCtx.String("sms-api-key"), nil),
					cCtx.String("sms-template"),
					logger,
				)
			} else {
				logger.Warn("profile-url not set, activation notifications disabled")
			}

			orchestrator := activation.NewOrchestrator(store, secrets, verifier, activation.NewIssuer(registration, tokens, logger), logger)
			dispatcher := activation.NewDispatcher(activation.DispatcherConfig{
				Source:         cCtx.String("event-source"),
				LifecycleTopic: cCtx.String("lifecycle-topic"),
			}, notifier, events.NewCloudEventPublisher(publisher, cCtx.String("event-source"), logger), logger)

			serverCfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			serverCfg.AdminListenAddr = cCtx.String("admin-listen-addr")

			server, err := httpserver.New(serverCfg,
				activationhandler.NewHandler(orchestrator, dispatcher, cfg, logger),
				adminhandler.NewHandler(orchestrator, dispatcher, logger),
			)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server",
				"vinEnabled", cfg.VINEnabled,
				"deviceValidation", cfg.DeviceValidationEnabled,
				"typeAwareIssuance", cfg.TypeAwareIssuance,
				"qualifierAlgorithm", cfg.QualifierAlgorithm,
			)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			if err := publisher.Close(); err != nil {
				logger.Warn("Failed to close event publisher", "err", err)
			}
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func activationConfig(cCtx *cli.Context) (activation.Config, error) {
	cfg := activation.DefaultConfig()
	cfg.VINEnabled = cCtx.Bool("vin-enabled")
	cfg.DeviceValidationEnabled = cCtx.Bool("device-validation")
	cfg.AllowedDeviceTypes = cCtx.StringSlice("allowed-device-type")
	cfg.TypeAwareIssuance = cCtx.Bool("type-aware-issuance")
	cfg.DefaultPrefix = strings.ToUpper(cCtx.String("default-prefix"))
	cfg.InvalidStateTopic = cCtx.String("invalid-state-topic")
	cfg.InvalidStateEventTypes = cCtx.StringSlice("invalid-state-event-type")
	cfg.QualifierAlgorithm = cCtx.String("qualifier-algorithm")

	prefixes, err := activation.ParseTypePrefixes(cCtx.StringSlice("type-prefix"))
	if err != nil {
		return cfg, err
	}
	cfg.TypePrefixes = prefixes

	if cfg.DeviceValidationEnabled && len(cfg.AllowedDeviceTypes) == 0 {
		return cfg, fmt.Errorf("%w: device-validation needs at least one allowed-device-type", interfaces.ErrValidation)
	}
	return cfg, nil
}

func secretStore(cCtx *cli.Context, logger *slog.Logger) (interfaces.SecretStore, error) {
	uris := cCtx.StringSlice("secret-store")
	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	return storage.NewSecretStoreFactory(logger).CreateMultiBackend(locations)
}

func tokenSource(cCtx *cli.Context) (interfaces.TokenSource, error) {
	if tokenURL := cCtx.String("token-url"); tokenURL != "" {
		return registry.NewClientCredentialsTokenSource(
			tokenURL,
			cCtx.String("token-client-id"),
			cCtx.String("token-client-secret"),
			cCtx.StringSlice("token-scope"),
		), nil
	}
	if static := cCtx.String("static-token"); static != "" {
		return registry.StaticTokenSource(static), nil
	}
	return nil, errors.New("one of token-url or static-token is required")
}

func eventPublisher(cCtx *cli.Context, logger *slog.Logger) (message.Publisher, error) {
	if amqpURL := cCtx.String("amqp-url"); amqpURL != "" {
		return events.NewAMQPPublisher(amqpURL, cCtx.String("amqp-exchange"), "activation-server", logger)
	}
	logger.Warn("amqp-url not set, events are published in process only")
	publisher, _ := events.NewGoChannelPubSub(logger)
	return publisher, nil
}
