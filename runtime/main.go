package main

import (
	"github.com/varnstead/gatewall/services"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.SettingsService{},
		&services.SqliteService{},
		&services.RedisService{},
		&services.MinIOService{},

		&services.IdentityService{},
		&services.EventStoreService{},
		&services.RateCounterService{},
		&services.EmailService{},
		&services.GeolocationService{},
		&services.NotifierService{},
		&services.ClassifierService{},
		&services.RetentionService{},

		&services.JWTService{},
		&services.AuthService{},
		&services.MonitoringService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}
