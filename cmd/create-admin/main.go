package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/farmatrack/farmatrack-backend/internal/auth/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/config"
	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

func main() {
	username := flag.String("username", "admin", "username for the admin account")
	email := flag.String("email", "", "email for the admin account (required)")
	fullName := flag.String("name", "Administrador", "full name for the admin account")
	password := flag.String("password", "", "password (required, min 6 chars)")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: create-admin -email <email> -password <password> [-username admin] [-name <full name>]")
		os.Exit(1)
	}
	if len(*password) < 6 {
		fmt.Fprintln(os.Stderr, "password must be at least 6 characters")
		os.Exit(1)
	}

	cfg, err := config.Load("create-admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("create-admin", cfg.Server.Environment, cfg.Logging.Level)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash password")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user := &repository.User{
		Username:     *username,
		Email:        *email,
		PasswordHash: string(hash),
		FullName:     *fullName,
		Role:         repository.RoleAdmin,
	}

	users := repository.NewUserRepository(db)
	if err := users.Create(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("failed to create admin user")
	}

	fmt.Printf("admin user %s (%s) created with id %s\n", user.Username, user.Email, user.ID)
}
