package cmd

import (
	"github.com/wagate/pkg/config"
	"github.com/wagate/pkg/database"
	"github.com/wagate/pkg/server"
	"github.com/wagate/pkg/utils"
)

func StartApp() {
	config := config.InitConfig()
	utils.LoadEnv()
	database.InitDB(config.Database)
	server.LaunchHttpServer(config)
}
