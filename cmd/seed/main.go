// Command seed fills the configured store with random users and prints a dev
// token for each of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"winkwink_server/bootstrap"
	"winkwink_server/config"
	"winkwink_server/logger"
	"winkwink_server/middleware"
	"winkwink_server/services"
)

func main() {
	count := flag.Int("n", 30, "number of users to create")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}
	if cfg.IsProd() {
		fmt.Fprintln(os.Stderr, "refusing to seed a production environment")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer res.Close()

	svc := bootstrap.NewServices(res.Store, nil, nil, cfg, log)
	if err := run(ctx, svc.Profiles, cfg, *count, *seed); err != nil {
		log.Fatal("seed users", zap.Error(err))
	}
}

func run(ctx context.Context, profiles *services.UserProfileService, cfg config.Config, count int, seed uint64) error {
	rng := rand.New(rand.NewPCG(seed, seed>>7))
	secret := []byte(cfg.Auth.JWTSecret)

	for i := 0; i < count; i++ {
		u, err := profiles.CreateRandomProfile(ctx, rng)
		if err != nil {
			return err
		}
		token, err := middleware.SignToken(secret, u.ID, cfg.Auth.DevTokenTTL)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", u.ID, u.Name.Full(), token)
	}
	return nil
}
