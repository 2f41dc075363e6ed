package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpMW "github.com/yungbote/reelforge-backend/internal/http/middleware"
	"github.com/yungbote/reelforge-backend/internal/utils"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <operator>",
	Short: "Sign an operator token for the HTTP API",
	Long: `Sign a bearer token for the mutating HTTP endpoints (run, stop, import,
rotation clear, cron tick) with JWT_SECRET_KEY.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"app": "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := utils.GetEnv("JWT_SECRET_KEY", "", log)
		if secret == "" {
			return fmt.Errorf("JWT_SECRET_KEY is not set")
		}
		auth, err := httpMW.NewAuthMiddleware(log, secret)
		if err != nil {
			return err
		}
		tok, err := auth.SignToken(args[0], tokenTTL)
		if err != nil {
			return err
		}
		printf(cmd, "%s\n", tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")
}
