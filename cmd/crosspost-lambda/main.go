// Command crosspost-lambda runs the publish orchestrator behind API
// Gateway. The same webhook mux as the standalone server is wrapped with
// the Lambda HTTP adapter; all wiring happens once at cold start.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/bootstrap"
	"github.com/storeberg/crosspost/internal/config"
	"github.com/storeberg/crosspost/internal/logging"
	"github.com/storeberg/crosspost/internal/server"
)

var adapter *httpadapter.HandlerAdapter

func init() {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()
	clients, err := bootstrap.InitAWS(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("AWS initialization failed")
	}

	orch, err := bootstrap.Build(ctx, cfg, clients)
	if err != nil {
		log.Fatal().Err(err).Msg("Service assembly failed")
	}

	adapter = httpadapter.New(server.New(orch, cfg).Mux())
}

func main() {
	lambda.Start(adapter.ProxyWithContext)
}
