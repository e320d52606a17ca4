// Package main contains the cli implementation of mnemo. It uses cobra
// for cli tool implementation.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mnemo/internal/config"
	"mnemo/internal/registry"
	"mnemo/internal/store"
	"mnemo/internal/viewcompiler"
)

type connFlags struct {
	dsn        string
	configFile string
}

type defineAttributeFlags struct {
	connFlags
	ident       string
	valueType   string
	cardinality string
	unique      string
	doc         string
}

type defineViewFlags struct {
	connFlags
	name     string
	required []string
	optional []string
	doc      string
}

type queryFlags struct {
	connFlags
	asOf int64
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "mnemo",
		Short: "Bitemporal schema-as-data datom store",
	}

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(defineAttributeCmd())
	rootCmd.AddCommand(defineViewCmd())
	rootCmd.AddCommand(queryCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildStoreOptions resolves connection flags into store.Options: a
// mnemo.toml config file supplies the DSN plus its pool limits and default
// doc string, while a bare --dsn only supplies the connection string.
func buildStoreOptions(f connFlags) (store.Options, error) {
	if f.configFile != "" {
		cfg, err := config.Load(f.configFile)
		if err != nil {
			return store.Options{}, err
		}
		return store.Options{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			DefaultDoc:   cfg.Database.DefaultDocEmpty,
			Out:          os.Stdout,
		}, nil
	}
	if f.dsn != "" {
		return store.Options{DSN: f.dsn, Out: os.Stdout}, nil
	}
	return store.Options{}, fmt.Errorf("either --dsn or --config is required")
}

func addConnFlags(cmd *cobra.Command, f *connFlags) {
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "PostgreSQL connection string")
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to mnemo.toml")
}

func openStore(ctx context.Context, f connFlags) (*store.Store, error) {
	opts, err := buildStoreOptions(f)
	if err != nil {
		return nil, err
	}
	s := store.New(opts)
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func initCmd() *cobra.Command {
	flags := &connFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap a fresh database's system attributes and introspection views",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(*flags)
		},
	}
	addConnFlags(cmd, flags)
	return cmd
}

func runInit(f connFlags) error {
	ctx := context.Background()
	s, err := openStore(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Bootstrap(ctx)
}

func defineAttributeCmd() *cobra.Command {
	flags := &defineAttributeFlags{}
	cmd := &cobra.Command{
		Use:   "define-attribute",
		Short: "Declare a new attribute",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDefineAttribute(flags)
		},
	}
	addConnFlags(cmd, &flags.connFlags)
	cmd.Flags().StringVar(&flags.ident, "ident", "", "Namespaced attribute ident, e.g. person/email (required)")
	cmd.Flags().StringVar(&flags.valueType, "type", "", "Logical value type, e.g. text, ref, int8 (required)")
	cmd.Flags().StringVar(&flags.cardinality, "cardinality", "one", "Cardinality: one or many")
	cmd.Flags().StringVar(&flags.unique, "unique", "", "Uniqueness: identity, value, or empty")
	cmd.Flags().StringVar(&flags.doc, "doc", "", "Optional documentation string")
	return cmd
}

func runDefineAttribute(flags *defineAttributeFlags) error {
	if flags.ident == "" || flags.valueType == "" {
		return fmt.Errorf("--ident and --type are required")
	}
	ctx := context.Background()
	s, err := openStore(ctx, flags.connFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.DefineAttribute(ctx, registry.Definition{
		Ident: flags.ident, ValueType: flags.valueType,
		Cardinality: flags.cardinality, Unique: flags.unique, Doc: flags.doc,
	})
	if err != nil {
		return err
	}
	fmt.Printf("attribute %s defined with id %d\n", flags.ident, id)
	return nil
}

func defineViewCmd() *cobra.Command {
	flags := &defineViewFlags{}
	cmd := &cobra.Command{
		Use:   "define-view",
		Short: "Declare or redeclare a view",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDefineView(flags)
		},
	}
	addConnFlags(cmd, &flags.connFlags)
	cmd.Flags().StringVar(&flags.name, "name", "", "View name (required)")
	cmd.Flags().StringSliceVar(&flags.required, "required", nil, "Required attribute idents")
	cmd.Flags().StringSliceVar(&flags.optional, "optional", nil, "Optional attribute idents")
	cmd.Flags().StringVar(&flags.doc, "doc", "", "Optional documentation string")
	return cmd
}

func runDefineView(flags *defineViewFlags) error {
	if flags.name == "" {
		return fmt.Errorf("--name is required")
	}
	ctx := context.Background()
	s, err := openStore(ctx, flags.connFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = s.DefineView(ctx, viewcompiler.Definition{
		Name: flags.name, Required: flags.required, Optional: flags.optional, Doc: flags.doc,
	})
	return err
}

func queryCmd() *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only query, optionally as of a past transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runQuery(flags, args[0])
		},
	}
	addConnFlags(cmd, &flags.connFlags)
	cmd.Flags().Int64Var(&flags.asOf, "as-of", 0, "Transaction id to query as of (0 means current)")
	return cmd
}

func runQuery(flags *queryFlags, query string) error {
	ctx := context.Background()
	s, err := openStore(ctx, flags.connFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	var asOf *int64
	if flags.asOf != 0 {
		asOf = &flags.asOf
	}

	return s.QueryAsOf(ctx, query, asOf, nil, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			fmt.Println(values...)
		}
		return nil
	})
}
