package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/auth"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/cache"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/config"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
)

func main() {
	var (
		operatorID  string
		username    string
		permissions string
		ttl         time.Duration
	)
	flag.StringVar(&operatorID, "operator", "", "Operator ID (token subject)")
	flag.StringVar(&username, "username", "", "Operator name recorded as the diff solver")
	flag.StringVar(&permissions, "permissions", auth.PermissionReconciliationRead,
		"Comma-separated permissions, or \"all\"")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime; defaults to jwt.access_token_expiration")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Output = "stderr"
	logCfg.ServiceName = "paycore-token"
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	switch args[0] {
	case "issue":
		if ttl > 0 {
			cfg.JWT.AccessTokenExpiration = ttl
		}
		token, err := auth.NewJWTService(cfg.JWT).GenerateToken(auth.GenerateTokenInput{
			OperatorID:  operatorID,
			Username:    username,
			Permissions: parsePermissions(permissions),
		})
		if err != nil {
			log.Fatal("Failed to issue token", zap.Error(err))
		}
		log.Info("Token issued",
			zap.String("operator", operatorID),
			zap.Time("expires_at", token.ExpiresAt),
		)
		fmt.Println(token.AccessToken)

	case "revoke":
		if len(args) < 2 {
			log.Fatal("Usage: token revoke <access-token>")
		}
		claims, err := auth.NewJWTService(cfg.JWT).ValidateAccessToken(args[1])
		if err != nil {
			log.Fatal("Token is not valid, nothing to revoke", zap.Error(err))
		}
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Revocation needs Redis", zap.Error(err))
		}
		defer func() { _ = client.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := auth.NewRedisTokenBlacklist(client, "").AddToBlacklist(ctx, claims.ID, claims.GetRemainingTTL()); err != nil {
			log.Fatal("Failed to revoke token", zap.Error(err))
		}
		log.Info("Token revoked",
			zap.String("operator", claims.OperatorID),
			zap.String("jti", claims.ID),
		)

	default:
		printUsage()
		os.Exit(1)
	}
}

func parsePermissions(s string) []string {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return auth.AllPermissions()
	}
	var perms []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	return perms
}

func printUsage() {
	fmt.Println(`Usage: token [options] <command> [args]

Commands:
  issue             Print a signed operator access token
  revoke <token>    Blacklist a token until it expires (requires Redis)

Options:
  -operator string      Operator ID (token subject)
  -username string      Operator name recorded as the diff solver
  -permissions string   Comma-separated permissions, or "all"
                        (reconciliation:read, reconciliation:write, outbox:admin)
  -ttl duration         Token lifetime

Examples:
  token -operator op-1 -username alice -permissions all issue
  token revoke eyJhbGciOi...`)
}
