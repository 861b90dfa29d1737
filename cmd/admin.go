package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ISTE-SAL/InGress/internal/auth"
	"github.com/ISTE-SAL/InGress/internal/token"
	"github.com/spf13/cobra"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := commonRun()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			st.close()
			logger.Info("schema is up to date", "component", programName, "store", cfg.Store)
			return nil
		},
	}
}

func tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Encode or inspect QR tokens",
	}

	var pngPath string
	var size int
	encode := &cobra.Command{
		Use:   "encode EVENT_ID PARTICIPANT_ID",
		Short: "Print the token for a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			raw, err := token.NewCodec(cfg.TokenSecret).Encode(args[0], args[1])
			if err != nil {
				return err
			}
			if pngPath != "" {
				png, err := token.PNG(raw, size)
				if err != nil {
					return err
				}
				if err := os.WriteFile(pngPath, png, 0o644); err != nil {
					return fmt.Errorf("write qr image: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	encode.Flags().StringVar(&pngPath, "png", "", "also write the QR image to this file")
	encode.Flags().IntVar(&size, "size", token.DefaultImageSize, "QR image size in pixels")

	decode := &cobra.Command{
		Use:   "decode RAW",
		Short: "Parse and verify a scanned token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			codec := token.NewCodec(cfg.TokenSecret)
			tok, err := codec.Decode(args[0])
			if err != nil {
				return err
			}
			status := "ok"
			if err := codec.Verify(tok); err != nil {
				status = err.Error()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event:       %s\nparticipant: %s\nsignature:   %s\n",
				tok.EventID, tok.ParticipantID, status)
			return nil
		},
	}

	cmd.AddCommand(encode, decode)
	return cmd
}

func sessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage operator sessions",
	}

	var (
		subject string
		name    string
		roles   string
		ttl     time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for an operator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			issuer, err := auth.NewIssuer(cfg.SessionSecret)
			if err != nil {
				return err
			}
			session, err := auth.NewOperatorSession(subject, name, roles)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.SessionTTL
			}
			raw, err := issuer.Issue(session, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "operator id (required)")
	issue.Flags().StringVar(&name, "name", "", "display name")
	issue.Flags().StringVar(&roles, "roles", "scanner", "roles or capabilities, comma separated")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to sessionTTL)")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}
