package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	tokens "github.com/giantswarm/oauth-tokens"
	"github.com/giantswarm/oauth-tokens/claims"
	"github.com/giantswarm/oauth-tokens/identity"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

// app holds state shared by every subcommand of one process. The service
// is created on first use and reused, so in --memory mode records issued
// by one command are visible to the next within the same process.
type app struct {
	out io.Writer

	configPath     string
	principalsPath string
	memory         bool
	verbose        bool

	svc       *tokens.Service
	directory *identity.Directory
}

func newApp(out io.Writer) *app {
	return &app{out: out, directory: identity.NewDirectory()}
}

// newRootCmd builds the command tree
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tokenctl",
		Short: "Issue, inspect and revoke OAuth tokens",
		Long: `tokenctl administers the token store behind an OAuth authorization server.
It issues authorization codes, access tokens and refresh tokens for a
subject, validates raw tokens, lists live records and revokes them.`,
		SilenceUsage: true,
	}
	root.SetOut(a.out)
	root.SetVersionTemplate(`{{printf "tokenctl version %s\n" .Version}}`)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&a.principalsPath, "principals", "", "YAML file of principals used to resolve refresh token subjects")
	root.PersistentFlags().BoolVar(&a.memory, "memory", false, "use a process-local in-memory store with an ephemeral ticket key")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newKeygenCmd(a),
		newIssueCmd(a),
		newVerifyCmd(a),
		newListCmd(a),
		newRevokeCmd(a),
	)
	return root
}

// service returns the token service, creating it on first use.
func (a *app) service() (*tokens.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	cfg, err := tokens.ReadConfig(a.configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if a.memory {
		cfg.Storage.Backend = tokens.BackendMemory
		if cfg.Ticket.Key == "" {
			key, err := security.GenerateKey()
			if err != nil {
				return nil, err
			}
			cfg.Ticket.Key = security.KeyToBase64(key)
		}
	}

	if a.principalsPath != "" {
		if err := a.loadPrincipals(a.principalsPath); err != nil {
			return nil, err
		}
	}

	svc, err := tokens.New(cfg, a.directory)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

func (a *app) close() {
	if a.svc != nil {
		_ = a.svc.Close(context.Background())
		a.svc = nil
	}
}

// principalFile is the on-disk form of --principals:
//
//	- subject: u1
//	  claims:
//	    role: [admin, user]
type principalFile struct {
	Subject string              `yaml:"subject"`
	Claims  map[string][]string `yaml:"claims"`
}

func (a *app) loadPrincipals(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read principals file: %w", err)
	}
	var entries []principalFile
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse principals file: %w", err)
	}
	for _, e := range entries {
		if e.Subject == "" {
			return fmt.Errorf("principals file: entry without subject")
		}
		a.directory.Put(identity.NewPrincipal(e.Subject, "", claimSet(e.Subject, e.Claims)))
	}
	return nil
}

// claimSet builds a claim set with sub first and the remaining claims in
// key order.
func claimSet(subject string, values map[string][]string) *claims.Set {
	c := &claims.Set{}
	c.Add(claims.Subject, subject)
	for _, k := range sortedKeys(values) {
		for _, v := range values[k] {
			c.Add(k, v)
		}
	}
	return c
}

// kindFlag parses the --type flag shared by several commands.
func kindFlag(cmd *cobra.Command) (storage.Kind, error) {
	v, err := cmd.Flags().GetString("type")
	if err != nil {
		return "", err
	}
	return storage.ParseKind(v)
}

func addKindFlag(cmd *cobra.Command, def string) {
	cmd.Flags().StringP("type", "t", def, "record type: access, refresh or code")
}

func sortedKeys(m map[string][]string) []string {
	return slices.Sorted(maps.Keys(m))
}
