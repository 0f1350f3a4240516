package main

import (
	"context"
	"log"
	"os"

	"exexd/bootstrap"

	"github.com/bpcoder16/Chestnut/v2/appconfig"
	"github.com/bpcoder16/Chestnut/v2/core/cdefer"
)

func main() {
	flags, err := bootstrap.ParseFlags(os.Args[0], os.Args[1:])
	if err != nil {
		log.Fatalln("parse flags:", err)
	}

	config := appconfig.MustLoadAppConfig("/conf/app-server.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bootstrap.MustInit(ctx, config)
	defer cdefer.Defer()

	log.Println("server exit:", bootstrap.Start(ctx, config, flags))
}
