package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskboard/internal/models"
	"taskboard/internal/server"
)

// tokenCmd mints a bearer token for local development. Production tokens
// come from the identity provider that shares TASKBOARD_JWT_SECRET.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("TASKBOARD_JWT_SECRET is not set")
			}

			id, _ := cmd.Flags().GetInt64("id")
			username, _ := cmd.Flags().GetString("username")
			name, _ := cmd.Flags().GetString("name")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			token, err := server.GenerateToken([]byte(cfg.JWTSecret), models.Principal{
				UserID:   id,
				Username: username,
				Name:     name,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().Int64("id", 0, "user id")
	cmd.Flags().String("username", "", "login name")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
