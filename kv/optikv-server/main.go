package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/optikv/optikv/kv/config"
	"github.com/optikv/optikv/kv/server"
	"github.com/optikv/optikv/kv/storage/standalone_storage"
)

var (
	configPath = flag.String("config", "", "config file path")
	storeAddr  = flag.String("addr", "", "store address")
	dbPath     = flag.String("path", "", "directory path of db")
	logLevel   = flag.String("loglevel", "", "the level of log")
)

func main() {
	flag.Parse()
	conf := loadConfig()

	logger, props, err := log.InitLogger(&log.Config{Level: conf.LogLevel})
	if err != nil {
		panic(err)
	}
	log.ReplaceGlobals(logger, props)
	log.Info("starting", zap.Reflect("conf", conf))

	store := standalone_storage.NewStandAloneStorage(conf)
	if err := store.Start(); err != nil {
		log.Fatal("start storage", zap.Error(err))
	}
	srv := server.NewServerWithConfig(store, conf)
	_ = srv // the transport dispatcher attaches here

	log.Info("server ready", zap.String("addr", conf.StoreAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Info("received signal, stopping", zap.String("signal", sig.String()))

	if err := store.Stop(); err != nil {
		log.Fatal("stop storage", zap.Error(err))
	}
	log.Info("server stopped")
}

func loadConfig() *config.Config {
	conf := config.NewDefaultConfig()
	if *configPath != "" {
		var err error
		conf, err = config.FromFile(*configPath)
		if err != nil {
			panic(err)
		}
	}
	if *storeAddr != "" {
		conf.StoreAddr = *storeAddr
	}
	if *dbPath != "" {
		conf.DBPath = *dbPath
	}
	if *logLevel != "" {
		conf.LogLevel = *logLevel
	}
	if err := conf.Validate(); err != nil {
		panic(err)
	}
	return conf
}
