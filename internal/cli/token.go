package cli

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/services/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		name   string
		email  string
		secret string
		issuer string
		ttl    time.Duration
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an identity token for development",
		Long: `Mint an HS256 identity token signed with the server's shared secret.

Production deployments get tokens from the identity provider; this command is
for local servers and tests. With --save the token is written to the token file
and used by later commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}

			clk := clock.New()
			minter, err := auth.NewJWTVerifier(auth.Config{
				JWTSecret: secret,
				Issuer:    issuer,
				TokenTTL:  ttl,
			}, clk)
			if err != nil {
				return err
			}

			token, err := minter.Issue(model.Identity{ID: model.UserID(userID), Name: name, Email: email})
			if err != nil {
				return err
			}

			if save {
				if err := cfg.SaveToken(token); err != nil {
					return err
				}
			}

			out := NewOutput(cfg.Output)
			out.Print(TokenResult{
				UserID:    userID,
				Name:      name,
				Token:     token,
				ExpiresAt: clk.Now().Add(ttl).UTC().Truncate(time.Second),
			})
			return nil
		},
	}

	defaults := auth.DefaultConfig()
	cmd.Flags().StringVar(&userID, "user", "", "User ID (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&secret, "secret", getEnvOrDefault("TYPEROOM_AUTH_JWT_SECRET", auth.DevJWTSecret),
		"Shared secret (env: TYPEROOM_AUTH_JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", defaults.Issuer, "Token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", defaults.TokenTTL, "Token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "Save the token to the token file")

	return cmd
}

// tokenSubject reads the user ID from a token without verifying it; the
// server verifies the token during the handshake
func tokenSubject(token string) (string, error) {
	var claims auth.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
