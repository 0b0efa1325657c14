package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"calcbot/internal/config"
	"calcbot/internal/rates"
	"calcbot/internal/store"

	"github.com/spf13/cobra"
)

// checker tallies diagnostic results.
type checker struct {
	w                      io.Writer
	passed, warned, failed int
}

func (c *checker) pass(check, detail string) {
	c.passed++
	fmt.Fprintf(c.w, "  [PASS] %-20s %s\n", check, detail)
}

func (c *checker) warn(check, detail string) {
	c.warned++
	fmt.Fprintf(c.w, "  [WARN] %-20s %s\n", check, detail)
}

func (c *checker) fail(check, detail string) {
	c.failed++
	fmt.Fprintf(c.w, "  [FAIL] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your calcbot installation",
		Long: `Verifies the configuration, chat tokens, database, rate sources and
metrics port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &checker{w: cmd.OutOrStdout()}
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Fprintf(c.w, "calcbot doctor v%s\n\n", version)

			if _, err := os.Stat(cfgPath); err != nil {
				c.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			} else {
				c.pass("Config file", cfgPath)
			}

			if loaded, err := config.LoadDotEnv(envFile); err != nil {
				c.fail("Env file", err.Error())
			} else if loaded {
				c.pass("Env file", envFile)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				c.fail("Config validation", err.Error())
				return c.summary()
			}
			c.pass("Config validation", "valid")

			if err := config.CheckTokens(cfg); err != nil {
				c.fail("Chat tokens", err.Error())
			} else {
				c.pass("Chat tokens", "present for every enabled channel")
			}

			if cfg.Store.Enabled {
				if err := checkDatabase(cfg.Store.DBPath); err != nil {
					c.fail("Database", err.Error())
				} else {
					c.pass("Database", cfg.Store.DBPath)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Rates.HTTPTimeout+5*time.Second)
			defer cancel()
			fiat, crypto := rateSources(cfg)
			for _, src := range []rates.Source{fiat, crypto} {
				name := "Rates: " + src.Name()
				quotes, err := src.Fetch(ctx)
				switch {
				case err != nil:
					c.warn(name, err.Error())
				case len(quotes) == 0:
					c.warn(name, "no quotes returned")
				default:
					c.pass(name, fmt.Sprintf("%d quotes", len(quotes)))
				}
			}

			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					c.warn("Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
				} else {
					c.pass("Metrics listen", cfg.Metrics.Listen+" available")
				}
			}

			return c.summary()
		},
	}
}

func (c *checker) summary() error {
	fmt.Fprintf(c.w, "\nResults: %d passed, %d warnings, %d failed\n", c.passed, c.warned, c.failed)
	if c.failed > 0 {
		return fmt.Errorf("%d check(s) failed", c.failed)
	}
	return nil
}

// checkDatabase opens the store, which creates and migrates it when needed.
func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	return st.Close()
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
