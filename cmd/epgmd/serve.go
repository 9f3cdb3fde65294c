package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/lynxkite/lynxkite/epgm/config"
	"github.com/lynxkite/lynxkite/epgm/server"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	return cmd
}

func newCheckConfigCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	return cmd
}

func serve(cfg *config.Config) error {
	if err := setLogLevel(cfg.LogLevel); err != nil {
		return errors.NotValidf("log level %q", cfg.LogLevel)
	}
	var opts []grpc.ServerOption
	if cfg.CertDir != "" {
		creds, err := credentials.NewServerTLSFromFile(
			filepath.Join(cfg.CertDir, "cert.pem"), filepath.Join(cfg.CertDir, "private-key.pem"))
		if err != nil {
			return errors.Annotate(err, "failed to read credentials")
		}
		opts = append(opts, grpc.Creds(creds))
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return errors.Annotate(err, "failed to listen")
	}
	engine, err := server.NewServer(cfg)
	if err != nil {
		return err
	}
	s := grpc.NewServer(opts...)
	server.RegisterEngineServer(s, engine)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-stop
		log.Info("received {{signal}}, shutting down", "signal", sig)
		s.GracefulStop()
	}()

	log.Info("listening on port {{port}}", "port", cfg.Port, "parallelism", cfg.Parallelism, "tls", cfg.CertDir != "")
	if err := s.Serve(lis); err != nil {
		return errors.Annotate(err, "failed to serve")
	}
	engine.Wait()
	return nil
}
