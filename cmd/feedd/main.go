package main

import (
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"

	"marketcal/internal/config"
	"marketcal/internal/handler"
	"marketcal/internal/svc"
)

var configFile = flag.String("f", "etc/feedd.yaml", "the config file")

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	if cfg.IsTestEnv() {
		logx.DisableStat()
	}

	server := rest.MustNewServer(cfg.RestConf)
	defer server.Stop()

	svcCtx := svc.NewServiceContext(*cfg)
	defer svcCtx.Feed.Close()

	handler.RegisterHandlers(server, svcCtx)

	fmt.Printf("Starting server at %s:%d (config %s)...\n", cfg.Host, cfg.Port, cfg.MainPath())
	server.Start()
}
