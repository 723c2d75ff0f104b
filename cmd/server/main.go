package main

import (
	"log"

	"flagforge/internal/admin"
	"flagforge/internal/compete"
	"flagforge/internal/config"
	"flagforge/internal/grader"
	"flagforge/internal/models"
	"flagforge/internal/notify"
	"flagforge/internal/repository"
	"flagforge/internal/routes"
	"flagforge/internal/service"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Team{},
		&models.Competitor{},
		&models.Problem{},
		&models.Submission{},
		&models.Window{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	repo := repository.NewRepository(db)

	graders := grader.NewRegistry(cfg.GraderTimeout)
	graders.Register("static", grader.NewStaticGrader())
	graders.Register("lua", grader.NewLuaGrader(cfg.GraderRoot))

	var announcer notify.Announcer = notify.NopAnnouncer{}
	if cfg.TelegramToken != "" {
		telegram, err := notify.NewTelegramAnnouncer(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatalf("Failed to create telegram announcer: %v", err)
		}
		announcer = telegram
	}

	scoring := service.NewScoringService(repo, graders, announcer, cfg.WindowDuration)

	adminHandler := admin.NewAdminHandler(repo, cfg.AdminUser, cfg.AdminPasswordHash, cfg.JWTSecret)
	competeHandler := compete.NewCompeteHandler(scoring, repo)

	router := routes.SetupRouter(adminHandler, competeHandler, cfg.JWTSecret)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
