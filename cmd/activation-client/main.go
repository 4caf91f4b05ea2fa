package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ruteri/device-activation-backend/api"
	"github.com/ruteri/device-activation-backend/api/activationhandler"
	"github.com/ruteri/device-activation-backend/api/adminhandler"
	"github.com/ruteri/device-activation-backend/cmd/flags"
	"github.com/ruteri/device-activation-backend/cryptoutils"
	"github.com/urfave/cli/v2"
)

var flagAdminServer = &cli.StringFlag{
	Name:    "admin-server-addr",
	Value:   "http://127.0.0.1:8081",
	Usage:   "operator API address to request",
	EnvVars: []string{flags.EnvPrefix + "ADMIN_SERVER_ADDR"},
}

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
}

var flagSerial = &cli.StringFlag{Name: "serial", Usage: "device serial number"}
var flagVIN = &cli.StringFlag{Name: "vin"}
var flagSecret = &cli.StringFlag{Name: "secret", Usage: "shared secret", Required: true}
var flagAAD = &cli.StringFlag{Name: "aad", Usage: "optional aad flag, yes or no"}
var flagAlgorithm = &cli.StringFlag{Name: "algorithm", Value: cryptoutils.QualifierHMACSHA256}
var flagDeviceType = &cli.StringFlag{Name: "device-type"}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func withTimeout(cCtx *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
}

func adminClient(cCtx *cli.Context) *adminhandler.AdminClient {
	return adminhandler.NewAdminClient(cCtx.String(flagAdminServer.Name))
}

func main() {
	app := &cli.App{
		Name:  "activation-client",
		Usage: "Device simulator and operator tool for the activation server",
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flagAdminServer,
			flagTimeout,
		},
		Commands: []*cli.Command{
			{
				Name:  "compute-qualifier",
				Usage: "Compute the qualifier a device would submit",
				Flags: []cli.Flag{flagSerial, flagVIN, flagSecret, flagAAD, flagAlgorithm},
				Action: func(cCtx *cli.Context) error {
					verifier, err := cryptoutils.NewQualifierVerifier(cCtx.String(flagAlgorithm.Name))
					if err != nil {
						return err
					}
					qualifier, err := verifier.ComputeQualifier("", cryptoutils.QualifierInput{
						VIN:          cCtx.String(flagVIN.Name),
						SerialNumber: cCtx.String(flagSerial.Name),
						AAD:          cCtx.String(flagAAD.Name),
					}, []byte(cCtx.String(flagSecret.Name)))
					if err != nil {
						return err
					}
					fmt.Println(qualifier)
					return nil
				},
			},
			{
				Name:  "encrypt-psk",
				Usage: "Encrypt a pre-shared key with the codec secret",
				Flags: []cli.Flag{
					flagSecret,
					&cli.StringFlag{Name: "key", Required: true},
				},
				Action: func(cCtx *cli.Context) error {
					encrypted, err := cryptoutils.EncryptPreSharedKey([]byte(cCtx.String(flagSecret.Name)), []byte(cCtx.String("key")))
					if err != nil {
						return err
					}
					fmt.Println(encrypted)
					return nil
				},
			},
			{
				Name:  "activate",
				Usage: "Activate a device with a qualifier",
				Flags: []cli.Flag{
					flagSerial, flagVIN, flagAAD, flagDeviceType,
					&cli.StringFlag{Name: "qualifier", Usage: "precomputed qualifier. If empty it is computed from --secret"},
					&cli.StringFlag{Name: "secret", Usage: "shared secret used to compute the qualifier"},
					&cli.StringFlag{Name: "product-type", Value: "TCU"},
					&cli.StringFlag{Name: "imei"},
					&cli.StringFlag{Name: "bssid"},
					&cli.StringFlag{Name: "hw-version"},
					&cli.StringFlag{Name: "sw-version"},
				},
				Action: func(cCtx *cli.Context) error {
					qualifier := cCtx.String("qualifier")
					if qualifier == "" {
						secret := cCtx.String("secret")
						if secret == "" {
							return errors.New("one of --qualifier or --secret is required")
						}
						verifier, err := cryptoutils.NewQualifierVerifier("")
						if err != nil {
							return err
						}
						qualifier, err = verifier.ComputeQualifier("", cryptoutils.QualifierInput{
							VIN:          cCtx.String(flagVIN.Name),
							SerialNumber: cCtx.String(flagSerial.Name),
							AAD:          cCtx.String(flagAAD.Name),
						}, []byte(secret))
						if err != nil {
							return err
						}
					}

					ctx, cancel := withTimeout(cCtx)
					defer cancel()

					client := activationhandler.NewClient(cCtx.String(flags.ServerAddrFlag.Name))
					resp, err := client.Activate(ctx, &api.ActivationRequest{
						VIN:          cCtx.String(flagVIN.Name),
						SerialNumber: cCtx.String(flagSerial.Name),
						Qualifier:    qualifier,
						HWVersion:    cCtx.String("hw-version"),
						SWVersion:    cCtx.String("sw-version"),
						ProductType:  cCtx.String("product-type"),
						DeviceType:   cCtx.String(flagDeviceType.Name),
						IMEI:         cCtx.String("imei"),
						BSSID:        cCtx.String("bssid"),
						AAD:          cCtx.String(flagAAD.Name),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "activate-psk",
				Usage: "Activate a device with a pre-shared key",
				Flags: []cli.Flag{
					flagDeviceType,
					&cli.StringFlag{Name: "activation-id", Required: true},
					&cli.StringFlag{Name: "psk", Usage: "encrypted pre-shared key", Required: true},
				},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := withTimeout(cCtx)
					defer cancel()

					client := activationhandler.NewClient(cCtx.String(flags.ServerAddrFlag.Name))
					resp, err := client.ActivatePSK(ctx, &api.PSKActivationRequest{
						ActivationID: cCtx.String("activation-id"),
						PreSharedKey: cCtx.String("psk"),
						DeviceType:   cCtx.String(flagDeviceType.Name),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "deactivate",
				Usage: "Deactivate a device",
				Flags: []cli.Flag{
					flagSerial,
					&cli.StringFlag{Name: "actor", Usage: "operator recorded on the readiness entries"},
				},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := withTimeout(cCtx)
					defer cancel()

					resp, err := adminClient(cCtx).Deactivate(ctx, &api.DeactivateRequest{
						SerialNumber: cCtx.String(flagSerial.Name),
						Actor:        cCtx.String("actor"),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "ready",
				Usage: "Mark a device ready to activate for a user",
				Flags: []cli.Flag{
					flagSerial,
					&cli.StringFlag{Name: "user", Required: true},
					&cli.BoolFlag{Name: "association-pending"},
				},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := withTimeout(cCtx)
					defer cancel()

					resp, err := adminClient(cCtx).MarkReady(ctx, &api.ReadinessRequest{
						SerialNumber:       cCtx.String(flagSerial.Name),
						UserID:             cCtx.String("user"),
						AssociationPending: cCtx.Bool("association-pending"),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "associate",
				Usage: "Record a VIN association",
				Flags: []cli.Flag{
					flagSerial, flagVIN,
					&cli.StringFlag{Name: "transaction-id", Required: true},
					&cli.StringFlag{Name: "status", Usage: "Pending, Completed or Failed"},
				},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := withTimeout(cCtx)
					defer cancel()

					resp, err := adminClient(cCtx).RecordAssociation(ctx, &api.AssociationRequest{
						SerialNumber:      cCtx.String(flagSerial.Name),
						VIN:               cCtx.String(flagVIN.Name),
						TransactionID:     cCtx.String("transaction-id"),
						TransactionStatus: cCtx.String("status"),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "transaction",
				Usage: "Update the transaction status of an association",
				Flags: []cli.Flag{
					flagSerial,
					&cli.StringFlag{Name: "status", Required: true},
				},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := withTimeout(cCtx)
					defer cancel()

					return adminClient(cCtx).UpdateTransactionStatus(ctx, cCtx.String(flagSerial.Name), cCtx.String("status"))
				},
			},
			{
				Name:  "status",
				Usage: "Show the operator view of a device",
				Flags: []cli.Flag{flagSerial},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := withTimeout(cCtx)
					defer cancel()

					resp, err := adminClient(cCtx).DeviceStatus(ctx, cCtx.String(flagSerial.Name))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "import-factory",
				Usage:     "Register factory records from a JSON file",
				ArgsUsage: "<records.json>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return errors.New("expected a single records file")
					}
					data, err := os.ReadFile(cCtx.Args().First())
					if err != nil {
						return err
					}

					var records []api.FactoryRecord
					if err := json.Unmarshal(data, &records); err != nil {
						return fmt.Errorf("invalid records file: %w", err)
					}

					client := adminClient(cCtx)
					for i := range records {
						ctx, cancel := withTimeout(cCtx)
						created, err := client.RegisterFactoryRecord(ctx, &records[i])
						cancel()
						if err != nil {
							return fmt.Errorf("record %d (%s): %w", i, records[i].SerialNumber, err)
						}
						fmt.Printf("registered %s id=%d\n", created.SerialNumber, created.ID)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
