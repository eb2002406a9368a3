package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qrave1/CoachSpeak/internal/application/config"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/infra/appctx"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/middleware"
)

var (
	tokenSubject string
	tokenRole    string
	tokenName    string
	tokenTTL     time.Duration
)

// tokenCmd выдаёт токен для локальной разработки без внешнего сервиса авторизации
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development JWT for a client or coach",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.New()
		if err != nil {
			log.Fatalf("could not load config: %v", err)
		}

		role := domain.Role(tokenRole)
		if !role.Human() {
			log.Fatalf("role must be client or coach, got %q", tokenRole)
		}

		userID := uuid.New()
		if tokenSubject != "" {
			if userID, err = uuid.Parse(tokenSubject); err != nil {
				log.Fatalf("invalid --sub: %v", err)
			}
		}

		token, err := middleware.IssueToken(cfg.JWTSecret, appctx.Identity{
			UserID:      userID,
			Role:        role,
			DisplayName: tokenName,
		}, tokenTTL)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}

		fmt.Println(token)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "user id (uuid), random when empty")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleClient), "client or coach")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(tokenCmd)
}
