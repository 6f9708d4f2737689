package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yanizio/siteconf/internal/config"
	"github.com/yanizio/siteconf/internal/database"
	"github.com/yanizio/siteconf/internal/meta"
	"github.com/yanizio/siteconf/internal/tenant"
)

// storeOpener returns the metadata store and a release func.
type storeOpener func(ctx context.Context) (meta.Store, func(), error)

// openStore reads configuration and connects to the SQL metadata store.
func openStore(ctx context.Context) (meta.Store, func(), error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver == "memory" {
		return nil, nil, errors.New("database.driver is memory; siteadmin needs a real database")
	}
	db, err := database.OpenWithOptions(ctx, cfg.Database.Driver, cfg.Database.DSN, 2, 1)
	if err != nil {
		return nil, nil, err
	}
	return meta.NewSQLStore(db), func() { _ = db.Close() }, nil
}

func newRootCommand(open storeOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "siteadmin",
		Short:         "Operator tasks for siteconf",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSchemaCommand(),
		newDomainCommand(open),
		newInviteCommand(open),
	)
	return root
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the metadata SQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), meta.Schema)
			return err
		},
	}
}

func newDomainCommand(open storeOpener) *cobra.Command {
	var (
		email string
		paid  bool
	)
	add := &cobra.Command{
		Use:   "add <host> <config-id>",
		Short: "Map a hostname to a tenant",
		Long: `Adds a row to the domains table.  The hostname is normalized the same
way requests are (lowercase, no port, no trailing dot, one leading "www."
removed), so "WWW.Example.com" and "example.com" are the same mapping.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := tenant.NormalizeHost(args[0])
			if host == "" {
				return fmt.Errorf("invalid host %q", args[0])
			}
			configID := args[1]
			if !meta.ValidConfigID(configID) {
				return fmt.Errorf("invalid config id %q", configID)
			}

			store, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			err = store.CreateDomain(cmd.Context(), &meta.Domain{
				Domain:    host,
				Email:     email,
				ConfigID:  configID,
				IsActive:  true,
				IsPaid:    paid,
				CreatedAt: time.Now().UTC(),
			})
			if errors.Is(err, meta.ErrDuplicate) {
				return fmt.Errorf("%s is already mapped", host)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", host, configID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "contact address stored with the mapping")
	add.Flags().BoolVar(&paid, "paid", false, "mark the domain as paid")

	domain := &cobra.Command{Use: "domain", Short: "Manage hostname mappings"}
	domain.AddCommand(add)
	return domain
}

func newInviteCommand(open storeOpener) *cobra.Command {
	var code string
	create := &cobra.Command{
		Use:   "create <config-id>",
		Short: "Mint a one-time signup code for a tenant",
		Long: `Creates an invitation redeemable once at signup when
auth.invitation_mode is "table".  A random code is generated unless --code
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configID := args[0]
			if !meta.ValidConfigID(configID) {
				return fmt.Errorf("invalid config id %q", configID)
			}
			if configID == meta.ConfigDefault || configID == meta.ConfigAdmin {
				return fmt.Errorf("%q is reserved", configID)
			}
			if code == "" {
				code = uuid.NewString()
			}

			store, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			err = store.CreateInvitation(cmd.Context(), &meta.Invitation{
				Code:      code,
				ConfigID:  configID,
				CreatedAt: time.Now().UTC(),
			})
			if errors.Is(err, meta.ErrDuplicate) {
				return fmt.Errorf("code %q already exists", code)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
	create.Flags().StringVar(&code, "code", "", "use this code instead of a random one")

	invite := &cobra.Command{Use: "invite", Short: "Manage signup invitations"}
	invite.AddCommand(create)
	return invite
}
