package main

import (
	"hardware_ledger/app"
	"hardware_ledger/config"
	"hardware_ledger/routes"

	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()

	application := app.MustNew()
	defer application.Close()

	r := application.Router
	routes.RegisterRoutes(r, application)

	port := application.Config.Port
	application.Logger.Info("listening", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		application.Logger.Error("server stopped", zap.Error(err))
	}
}
