package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/G-Research/batchproc/internal/batchapi"
	"github.com/G-Research/batchproc/internal/batchapi/configuration"
	"github.com/G-Research/batchproc/internal/common"
	"github.com/G-Research/batchproc/internal/common/app"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.BatchApiConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	common.LoadConfig(&config, "./config/batchapi", userSpecifiedConfigs)

	log.Info("Starting...")
	if err := batchapi.Serve(app.CreateContextWithShutdown(), &config); err != nil {
		log.Fatalf("Batch API failed: %v", err)
	}
}
