package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gatewright/entitled/internal/cache"
	"github.com/gatewright/entitled/internal/config"
	"github.com/gatewright/entitled/internal/logging"
	"github.com/gatewright/entitled/pkg/entitlement"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "entitled",
	Short:   "entitled - license and entitlement tooling",
	Long:    `entitled issues, verifies, and resolves signed license and entitlement tokens.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Init(logging.Config{
			Format:    cfg.LogFormat,
			Level:     cfg.LogLevel,
			Component: "entitled",
		})
		loadedConfig = cfg
		return nil
	},
}

// loadedConfig is populated by the root PersistentPreRunE before any
// subcommand runs.
var loadedConfig *config.Config

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("entitled %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Resolve and print the effective entitlement",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(loadedConfig)
		if err != nil {
			return err
		}
		return printJSON(svc.ResolveEffective())
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify a license or entitlement token and print its status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(loadedConfig)
		if err != nil {
			return err
		}
		token := strings.TrimSpace(args[0])
		switch {
		case strings.HasPrefix(token, entitlement.LicensePrefix+"."):
			return printJSON(svc.VerifyLicense(token))
		default:
			return printJSON(svc.VerifyEntitlement(token))
		}
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <token>",
	Short: "Verify an entitlement token and save it as the local entitlement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(loadedConfig)
		if err != nil {
			return err
		}
		rec, err := svc.SaveLocalEntitlement(strings.TrimSpace(args[0]), entitlement.SourceEntitlementToken)
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var activateLicenseCmd = &cobra.Command{
	Use:   "activate-license <token>",
	Short: "Save a license token as the local license",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(loadedConfig)
		if err != nil {
			return err
		}
		if err := svc.SaveLocalLicense(strings.TrimSpace(args[0])); err != nil {
			return err
		}
		fmt.Println("license saved")
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the locally saved entitlement and license",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(loadedConfig)
		if err != nil {
			return err
		}
		if err := svc.ClearLocalEntitlement(); err != nil {
			return err
		}
		if err := svc.ClearLocalLicense(); err != nil {
			return err
		}
		fmt.Println("local entitlement state cleared")
		return nil
	},
}

func newService(cfg *config.Config) (*entitlement.Service, error) {
	store, err := cache.NewFileStore(filepath.Join(cfg.DataDir, "cache"))
	if err != nil {
		return nil, err
	}
	return entitlement.NewService(cfg.ResolverConfig(), cfg.KeyMaterial(), cache.New(store))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(activateLicenseCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(issueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
