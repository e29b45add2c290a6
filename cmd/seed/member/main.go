package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"cesworld/pkg/config"
	"cesworld/pkg/db"
	"cesworld/pkg/featureflags"
	"cesworld/pkg/gen"
	"cesworld/pkg/hashistack/secretmanager"
	"cesworld/pkg/logger"
	"cesworld/pkg/minio"
	"cesworld/pkg/redis"
	"cesworld/pkg/sequence"
	"cesworld/services/account"
	"cesworld/services/audit"
	"cesworld/services/membership"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var (
	adminID = flag.String("admin", "admin", "user id granted the admin role")
	userID  = flag.String("user", "demo-customer", "user id enrolled as a member")
	csvPath = flag.String("csv", "", "optional CSV of transactions imported for the member")
)

func main() {
	flag.Parse()

	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		minio.Client,
		gen.Module,
		fx.Provide(
			audit.NewService,
			func(s *audit.Service) audit.Recorder { return s },
			func() featureflags.FeatureFlag { return featureflags.Static{} },
			membership.NewService,
			account.NewService,
		),
		fx.Invoke(seed),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.Stop(ctx)
}

func seed(accounts *account.Service, members *membership.Service) error {
	ctx := context.Background()

	if err := accounts.Upsert(ctx, &account.User{ID: *adminID, Name: "Administrator", Role: account.RoleAdmin}); err != nil {
		return err
	}
	// an existing account keeps its role on upsert
	if _, err := accounts.ChangeRole(ctx, audit.Actor{UserID: "seed"}, *adminID, string(account.RoleAdmin)); err != nil {
		return err
	}
	if err := accounts.Upsert(ctx, &account.User{ID: *userID, Name: "Demo Customer"}); err != nil {
		return err
	}

	m, created, err := members.Enroll(ctx, *userID, nil, nil)
	if err != nil {
		return err
	}
	zap.L().Info("member ready", zap.String("member_id", m.ID), zap.Bool("created", created))

	if *csvPath == "" {
		return nil
	}

	text, err := readFile(*csvPath)
	if err != nil {
		return err
	}
	result, err := members.ImportTransactions(ctx, audit.Actor{UserID: *adminID, UserAgent: "seed"}, m.ID, text)
	if err != nil {
		return err
	}
	zap.L().Info("seed import finished",
		zap.Int("created", result.Created),
		zap.Strings("errors", result.Errors),
		zap.String("tier", string(result.Member.Tier)),
	)
	return nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
