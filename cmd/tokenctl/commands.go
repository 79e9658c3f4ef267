package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	tokens "github.com/giantswarm/oauth-tokens"
	"github.com/giantswarm/oauth-tokens/claims"
	"github.com/giantswarm/oauth-tokens/identity"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/server"
	"github.com/giantswarm/oauth-tokens/storage"
)

// newKeygenCmd creates the command printing a fresh base64 ticket key.
func newKeygenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a 32-byte ticket or hash key",
		Long: `Generate a random 32-byte key, base64 encoded, suitable for
TOKENS_TICKET_KEY or TOKENS_HASH_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := security.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), security.KeyToBase64(key))
			return nil
		},
	}
}

// newIssueCmd creates the command issuing a code or token for a subject.
func newIssueCmd(a *app) *cobra.Command {
	var (
		subject     string
		clientID    string
		redirectURI string
		scope       []string
		rawClaims   []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an authorization code, access token or refresh token",
		Example: `  tokenctl issue --memory -t access --subject u1 --client c1 \
    --redirect-uri https://a/cb --scope read --claim role=admin --ttl 5m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindFlag(cmd)
			if err != nil {
				return err
			}
			set, err := parseClaims(subject, rawClaims)
			if err != nil {
				return err
			}

			svc, err := a.service()
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = defaultLifetime(svc.Config, kind)
			}

			principal := identity.NewPrincipal(subject, "", set)
			// Refresh grants in this process resolve the subject here.
			a.directory.Put(principal)

			ctx := cmd.Context()
			var raw string
			switch kind {
			case storage.KindCode:
				raw, err = svc.Manager.CreateAuthorizationCode(ctx, principal, ttl, clientID, redirectURI, scope)
			case storage.KindAccess:
				raw, err = svc.Manager.CreateAccessToken(ctx, principal, ttl, clientID, redirectURI, scope)
			case storage.KindRefresh:
				raw, err = svc.Manager.CreateRefreshToken(ctx, principal, ttl, clientID, redirectURI, scope)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	addKindFlag(cmd, string(storage.KindAccess))
	cmd.Flags().StringVar(&subject, "subject", "", "subject (user id) the token is issued to")
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "redirect URI the grant is bound to")
	cmd.Flags().StringSliceVar(&scope, "scope", nil, "granted scope (repeatable)")
	cmd.Flags().StringArrayVar(&rawClaims, "claim", nil, "claim as key=value (repeatable, keys may repeat)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "validity window (default from configuration)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

// verifyOutput is the JSON printed for an accepted token
type verifyOutput struct {
	Subject            string `json:"subject"`
	AuthenticationType string `json:"authentication_type,omitempty"`
	Claims             any    `json:"claims"`
}

// newVerifyCmd creates the command running a raw secret through its grant flow.
func newVerifyCmd(a *app) *cobra.Command {
	var (
		token       string
		clientID    string
		redirectURI string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Validate a raw token or redeem an authorization code",
		Long: `Validate a raw secret through the matching grant flow and print the
principal as JSON. Verifying an authorization code redeems it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindFlag(cmd)
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			ctx := server.WithCaller(cmd.Context(), "tokenctl")
			var (
				p     *identity.Principal
				grant string
			)
			switch kind {
			case storage.KindCode:
				grant = server.GrantAuthorizationCode
				p, err = svc.Manager.AuthenticateAuthorizationCode(ctx, redirectURI, token)
			case storage.KindAccess:
				grant = server.GrantAccessToken
				p, err = svc.Manager.AuthenticateAccessToken(ctx, token)
			case storage.KindRefresh:
				grant = server.GrantRefreshToken
				p, err = svc.Manager.AuthenticateRefreshToken(ctx, clientID, token, redirectURI)
			}
			if err != nil {
				oe := tokens.FromError(err, grant)
				return &rejectedError{code: oe.Code, err: err}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(verifyOutput{
				Subject:            p.Subject,
				AuthenticationType: p.AuthenticationType,
				Claims:             p.Claims,
			})
		},
	}

	addKindFlag(cmd, string(storage.KindAccess))
	cmd.Flags().StringVar(&token, "token", "", "raw token or code")
	cmd.Flags().StringVar(&clientID, "client", "", "client id (refresh tokens)")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "redirect URI (codes and refresh tokens)")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

// newListCmd creates the command listing live records of one kind.
func newListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live records of one type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindFlag(cmd)
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			recs, err := svc.Manager.List(cmd.Context(), kind)
			if err != nil {
				return err
			}

			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			case "table":
				return writeTable(cmd, recs)
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}

	addKindFlag(cmd, string(storage.KindAccess))
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

func writeTable(cmd *cobra.Command, recs []storage.Record) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLIENT\tSUBJECT\tSCOPE\tVALID TO")
	for _, r := range recs {
		client, subject, scope := describe(r)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.RecordID(), client, subject, strings.Join(scope, " "),
			r.Expiry().UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func describe(r storage.Record) (client, subject string, scope []string) {
	switch rec := r.(type) {
	case *storage.AccessToken:
		return rec.ClientID, rec.Subject, rec.Scope
	case *storage.RefreshToken:
		return rec.ClientID, rec.Subject, rec.Scope
	case *storage.AuthorizationCode:
		return rec.ClientID, rec.Subject, rec.Scope
	}
	return "", "", nil
}

// newRevokeCmd creates the command deleting a record by raw secret or id.
func newRevokeCmd(a *app) *cobra.Command {
	var (
		token string
		id    string
	)

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a record by raw token or by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (token == "") == (id == "") {
				return fmt.Errorf("exactly one of --token or --id is required")
			}
			kind, err := kindFlag(cmd)
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			if token != "" {
				err = svc.Manager.Revoke(cmd.Context(), kind, token)
			} else {
				err = svc.Manager.RevokeByID(cmd.Context(), kind, id)
			}
			if err != nil {
				return err
			}

			if id == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s by token\n", kind)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s %s\n", kind, id)
			return nil
		},
	}

	addKindFlag(cmd, string(storage.KindAccess))
	cmd.Flags().StringVar(&token, "token", "", "raw token or code")
	cmd.Flags().StringVar(&id, "id", "", "record id as shown by list")
	return cmd
}

func defaultLifetime(cfg tokens.Config, kind storage.Kind) time.Duration {
	switch kind {
	case storage.KindCode:
		return cfg.Lifetimes.AuthorizationCode
	case storage.KindRefresh:
		return cfg.Lifetimes.RefreshToken
	default:
		return cfg.Lifetimes.AccessToken
	}
}

// parseClaims builds the claim set of an issued principal: sub first, then
// each key=value flag in the order given.
func parseClaims(subject string, raw []string) (*claims.Set, error) {
	c := &claims.Set{}
	c.Add(claims.Subject, subject)
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid claim %q, want key=value", kv)
		}
		c.Add(k, v)
	}
	return c, nil
}
