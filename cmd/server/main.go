package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ib-compliance/internal/access"
	"ib-compliance/internal/catalog"
	"ib-compliance/internal/config"
	"ib-compliance/internal/database"
	"ib-compliance/internal/logger"
	"ib-compliance/internal/models"
	"ib-compliance/internal/server"
	"ib-compliance/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	root := &cobra.Command{
		Use:           "ib-compliance",
		Short:         "Applicability and control-reuse engine for compliance tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.RunE = serveCmd.RunE

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and create the default admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			return prepare(cfg, db)
		},
	}

	var catalogFile string
	seedCmd := &cobra.Command{
		Use:   "seed-templates",
		Short: "Load evidence types, templates and requirements from a YAML catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			if catalogFile == "" {
				catalogFile = cfg.TemplateCatalog
			}
			if catalogFile == "" {
				return errors.New("catalog file is required (--file or TEMPLATE_CATALOG)")
			}
			return seedTemplates(cmd.Context(), cfg, db, catalogFile)
		},
	}
	seedCmd.Flags().StringVar(&catalogFile, "file", "", "YAML catalog path (defaults to TEMPLATE_CATALOG)")

	root.AddCommand(serveCmd, migrateCmd, seedCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func prepare(cfg *config.Config, db *gorm.DB) error {
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logrus.Info("database migrated")
	return database.EnsureAdmin(db, cfg.AdminUsername, cfg.AdminPassword)
}

func authorizer(cfg *config.Config) (*access.Authorizer, error) {
	return access.NewAuthorizer(access.DefaultPolicy, access.Mode(cfg.AuthzMode))
}

// seedTemplates работает от имени системного администратора тенанта по умолчанию.
func seedTemplates(ctx context.Context, cfg *config.Config, db *gorm.DB, path string) error {
	authz, err := authorizer(cfg)
	if err != nil {
		return err
	}
	ec := access.NewExecContext(database.DefaultTenantID, 0, models.RoleAdmin, "seed-templates", authz)
	_, err = catalog.Seed(ctx, services.NewCatalogImporter(db), ec, path)
	return err
}

func runServe() error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	if err := prepare(cfg, db); err != nil {
		return err
	}
	if cfg.TemplateCatalog != "" {
		if err := seedTemplates(context.Background(), cfg, db, cfg.TemplateCatalog); err != nil {
			return err
		}
	}

	authz, err := authorizer(cfg)
	if err != nil {
		return err
	}
	r := server.NewRouter(cfg, services.New(db), authz)

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	logrus.WithFields(logrus.Fields{
		"addr":       addr,
		"authz_mode": cfg.AuthzMode,
	}).Info("starting server")
	return r.Run(addr)
}
