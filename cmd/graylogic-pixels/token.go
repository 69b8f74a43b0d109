package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/gray-logic-pixels/internal/auth"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/config"
)

// runToken prints a signed API token. The secret and default lifetime come
// from the config file (or GRAYLOGIC_API_JWT_SECRET).
//
//	graylogic-pixels token -subject wall-panel -scope viewer
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "operator", "token subject")
	scope := fs.String("scope", auth.ScopeOperator, "viewer or operator")
	ttl := fs.Duration("ttl", 0, "token lifetime (default api.auth.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return fmt.Errorf("api.auth.jwt_secret is not set")
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.API.Auth.TokenTTL) * time.Minute
	}

	token, err := auth.GenerateToken(*subject, *scope, cfg.API.Auth.JWTSecret, lifetime)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
