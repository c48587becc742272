package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"difyrelay/internal/audio"
	"difyrelay/internal/config"
	"difyrelay/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your difyrelay installation",
		Long: `Verifies that the configuration, credentials, ffmpeg and the dedup
database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("difyrelay doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			creds, err := config.LoadCredentials()
			if err == nil {
				err = creds.ValidateFor(cfg)
			}
			if err != nil {
				printFail("Credentials", err.Error())
				failed++
			} else {
				printPass("Credentials", "all required variables set")
				passed++
			}

			if bin, err := audio.LookupBinary(cfg.General.FFmpegPath); err != nil {
				printFail("ffmpeg", err.Error())
				failed++
			} else {
				printPass("ffmpeg", bin)
				passed++
			}

			if cfg.Dedup.Enabled {
				if err := checkDedupStore(cfg.Dedup.DBPath); err != nil {
					printFail("Dedup database", err.Error())
					failed++
				} else {
					printPass("Dedup database", cfg.Dedup.DBPath)
					passed++
				}
			}

			if cfg.Channels.WhatsApp.Enabled || cfg.Metrics.Enabled {
				if err := checkListen(cfg.Server.Listen); err != nil {
					printWarn("Listen address", fmt.Sprintf("%s may be in use: %v", cfg.Server.Listen, err))
					warned++
				} else {
					printPass("Listen address", cfg.Server.Listen+" available")
					passed++
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running difyrelay.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\ndifyrelay should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! difyrelay is ready to run.\n")
			}
			return nil
		},
	}
}

// checkDedupStore opens the store, which runs migrations, and pings it.
func checkDedupStore(dbPath string) error {
	s, err := store.NewSQLiteStore(dbPath, time.Hour, cliLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	return nil
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
