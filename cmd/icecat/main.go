// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Command icecat runs the Iceberg REST catalog service.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"storj.io/icecat/catalogdb"
	"storj.io/icecat/restapi"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "icecat",
		Short: "Iceberg REST catalog service",
		RunE:  run,
	}

	flags := rootCmd.Flags()
	flags.String("address", ":8181", "http listening address")
	flags.String("database-url", "postgres://localhost/icecat?sslmode=disable", "catalog database connection string")
	flags.Bool("dev", false, "development mode: verbose logs and stack traces in error responses")
	flags.String("log-file", "", "log to a rotated file instead of stderr")

	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("icecat")
	viper.AutomaticEnv()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) (err error) {
	log, err := newLogger(viper.GetBool("dev"), viper.GetString("log-file"))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := catalogdb.Open(ctx, log.Named("catalogdb"), viper.GetString("database-url"))
	if err != nil {
		return errs.New("unable to open database: %w", err)
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.MigrateToLatest(ctx); err != nil {
		return errs.New("unable to migrate database: %w", err)
	}

	address := viper.GetString("address")
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errs.New("unable to listen on %s: %w", address, err)
	}

	server := restapi.NewServer(log.Named("restapi"), listener, db, restapi.Config{
		Address: address,
		DevMode: viper.GetBool("dev"),
	})

	log.Info("catalog service starting", zap.String("address", address))

	defer func() { err = errs.Combine(err, server.Close()) }()
	return server.Run(ctx)
}

func newLogger(dev bool, logFile string) (*zap.Logger, error) {
	if logFile != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
		level := zap.InfoLevel
		if dev {
			level = zap.DebugLevel
		}
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			sink, level)
		return zap.New(core), nil
	}
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
