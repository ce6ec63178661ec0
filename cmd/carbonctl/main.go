package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/verdantio/carbonledger/internal/identity"
	"github.com/verdantio/carbonledger/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	ledgerURL   string
	cfgFile     string
	bearerToken string
	subjectType string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "carbonctl",
	Short: "carbonledger back-office CLI",
	Long: `carbonctl is the command-line interface for the carbonledger service.

It verifies chain integrity, inspects and exports ledger entries, records
audit events, and moves carbon credits through their lifecycle.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.carbonledger")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if ledgerURL == "" {
			ledgerURL = "http://localhost:8080"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.carbonledger/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ledgerURL, "ledger", "", "ledger API URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "actor bearer token")
	rootCmd.PersistentFlags().StringVar(&subjectType, "subject", "audit_event", "ledger to operate on (audit_event or credit_lifecycle)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(transitionCmd)
	rootCmd.AddCommand(mintTokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if bearerToken != "" {
		opts = append(opts, client.WithBearerToken(bearerToken))
	}
	return client.New(ledgerURL, opts...)
}

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyFrom uint64
	verifyTo   uint64
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain of a ledger",
	Long: `Verify recomputes every entry hash over [--from, --to] and checks each
predecessor link. Defaults cover the entire chain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		result, err := newClient().VerifyRange(ctx, subjectType, verifyFrom, verifyTo)
		if err != nil {
			return err
		}
		switch {
		case result.Valid:
			fmt.Printf("chain OK — %d entries verified\n", result.LastVerified)
		case result.Partial:
			fmt.Printf("verification cancelled — last verified sequence %d\n", result.LastVerified)
		default:
			fmt.Printf("chain BROKEN at sequence %d: %s (last good: %d)\n",
				result.BrokenAt, result.Reason, result.LastVerified)
			os.Exit(2)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().Uint64Var(&verifyFrom, "from", 0, "first sequence to verify (default 1)")
	verifyCmd.Flags().Uint64Var(&verifyTo, "to", 0, "last sequence to verify (default: current head)")
}

// ── overview ─────────────────────────────────────────────────────────────────

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show a ledger's length and root hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ov, err := newClient().GetOverview(ctx, subjectType)
		if err != nil {
			return err
		}
		fmt.Printf("ledger:  %s\nentries: %d\nroot:    %s\n", ov.SubjectType, ov.Entries, ov.Root)
		return nil
	},
}

// ── entry ────────────────────────────────────────────────────────────────────

var entryCmd = &cobra.Command{
	Use:   "entry <sequence>",
	Short: "Show a single ledger entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var seq uint64
		if _, err := fmt.Sscanf(args[0], "%d", &seq); err != nil {
			return fmt.Errorf("sequence must be a positive integer: %q", args[0])
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		entry, err := newClient().GetEntry(ctx, subjectType, seq)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

// ── tail ─────────────────────────────────────────────────────────────────────

var tailLimit int

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		params := url.Values{
			"subject_type": {subjectType},
			"limit":        {fmt.Sprintf("%d", tailLimit)},
		}
		result, err := newClient().QueryEntries(ctx, params)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIMESTAMP\tACTOR\tACTION\tRESOURCE\tHASH")
		for _, e := range result.Entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				e.Sequence, e.Timestamp.Format(time.RFC3339), e.ActorID,
				e.Action, e.Resource, e.Hash[:16]+"…",
			)
		}
		return w.Flush()
	},
}

func init() {
	tailCmd.Flags().IntVar(&tailLimit, "limit", 20, "number of entries to show")
}

// ── export ───────────────────────────────────────────────────────────────────

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a ledger to CSV or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		params := url.Values{"subject_type": {subjectType}}
		data, err := newClient().Export(ctx, params, exportFormat)
		if err != nil {
			return err
		}

		if exportOut == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(exportOut, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", len(data), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "export format: csv or json")
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "output file (default stdout)")
}

// ── append ───────────────────────────────────────────────────────────────────

var (
	appendResource string
	appendDetails  string
	appendSeverity string
)

var appendCmd = &cobra.Command{
	Use:   "append <action>",
	Short: "Record an audit event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		entry, err := newClient().AppendAuditEvent(ctx, client.AuditEvent{
			Action:   args[0],
			Resource: appendResource,
			Details:  appendDetails,
			Severity: appendSeverity,
		})
		if err != nil {
			return err
		}
		fmt.Printf("recorded sequence %d (hash %s)\n", entry.Sequence, entry.Hash)
		return nil
	},
}

func init() {
	appendCmd.Flags().StringVar(&appendResource, "resource", "", "entity acted upon")
	appendCmd.Flags().StringVar(&appendDetails, "details", "", "human-readable details")
	appendCmd.Flags().StringVar(&appendSeverity, "severity", "info", "info, warning, or critical")
}

// ── transition ───────────────────────────────────────────────────────────────

var (
	transitionOverride bool
	transitionReason   string
)

var transitionCmd = &cobra.Command{
	Use:   "transition <credit-id> <status>",
	Short: "Move a carbon credit to a new lifecycle status",
	Long: `Transition records a credit lifecycle change on the ledger. Valid
statuses advance strictly forward: issued, verified, sold, retired.

With --override the status argument is ignored and the credit is
force-retired; --reason is then required and goes on the record.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		c := newClient()
		if transitionOverride {
			entry, err := c.OverrideCredit(ctx, args[0], transitionReason, nil)
			if err != nil {
				return err
			}
			fmt.Printf("credit %s force-retired at sequence %d\n", args[0], entry.Sequence)
			return nil
		}

		if len(args) != 2 {
			return fmt.Errorf("a target status is required unless --override is set")
		}
		entry, err := c.TransitionCredit(ctx, args[0], args[1], nil)
		if err != nil {
			return err
		}
		fmt.Printf("credit %s -> %s at sequence %d\n", args[0], args[1], entry.Sequence)
		return nil
	},
}

func init() {
	transitionCmd.Flags().BoolVar(&transitionOverride, "override", false, "force-retire the credit from any state")
	transitionCmd.Flags().StringVar(&transitionReason, "reason", "", "override reason (required with --override)")
}

// ── mint-token ───────────────────────────────────────────────────────────────

var (
	mintActorID string
	mintRole    string
	mintSecret  string
	mintTTL     time.Duration
)

var mintTokenCmd = &cobra.Command{
	Use:   "mint-token",
	Short: "Mint a development actor token",
	Long: `mint-token signs an actor session token with the shared HMAC secret.
Meant for development and operational tooling; production tokens come
from the platform's session provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mintSecret == "" {
			mintSecret = viper.GetString("auth_token_secret")
		}
		if mintSecret == "" {
			return fmt.Errorf("--secret is required")
		}
		token, err := identity.NewTokenVerifier(mintSecret).Issue(
			identity.Actor{ID: mintActorID, Role: mintRole}, mintTTL,
		)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	mintTokenCmd.Flags().StringVar(&mintActorID, "actor", "admin@localhost", "actor identifier")
	mintTokenCmd.Flags().StringVar(&mintRole, "role", identity.RoleAdmin, "actor role")
	mintTokenCmd.Flags().StringVar(&mintSecret, "secret", "", "shared HMAC secret")
	mintTokenCmd.Flags().DurationVar(&mintTTL, "ttl", time.Hour, "token lifetime")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the carbonctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("carbonctl", version)
	},
}
