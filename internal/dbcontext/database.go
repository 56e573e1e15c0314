package dbcontext

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/codefirst/internal/appconfig"
	"github.com/roach88/codefirst/internal/migrations"
	"github.com/roach88/codefirst/internal/services"
	"github.com/roach88/codefirst/internal/store"
)

// Database is the database of one context: existence, creation, deletion,
// model compatibility and initialization.
type Database struct {
	c *Context
}

var _ services.Database = (*Database)(nil)

// Exists reports whether the database exists.
func (d *Database) Exists(ctx context.Context) (bool, error) {
	ok, err := d.c.ps.DatabaseExists(ctx, d.c.conn)
	if err != nil {
		return false, fmt.Errorf("dbcontext: %w", err)
	}
	return ok, nil
}

// Create creates the database and the model's schema, and records the
// initial migration. It fails with DatabaseExistsError when a model table
// is already present.
func (d *Database) Create(ctx context.Context) error {
	exists, err := d.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if err := d.c.ps.CreateDatabase(ctx, d.c.conn); err != nil {
			return fmt.Errorf("dbcontext: %w", err)
		}
	}
	db, err := d.c.open()
	if err != nil {
		return err
	}
	if exists {
		if tc, ok := d.c.cfg.TableExistenceChecker(d.c.conn.ProviderName); ok {
			found, err := tc.AnyModelTableExists(ctx, db, d.c.model.Mapping().Database.Tables)
			if err != nil {
				return fmt.Errorf("dbcontext: %w", err)
			}
			if found {
				return &DatabaseExistsError{Database: d.c.conn.Database}
			}
		}
	}

	row, err := d.migrator().Apply(ctx, db)
	if err != nil {
		return err
	}
	d.c.logger.Info("database created",
		"database", d.c.conn.Database,
		"migration_id", row.MigrationID,
		"model_hash", row.ModelHash)
	return nil
}

// CreateIfNotExists creates the database unless it exists. It reports
// whether the database was created.
func (d *Database) CreateIfNotExists(ctx context.Context) (bool, error) {
	exists, err := d.Exists(ctx)
	if err != nil || exists {
		return false, err
	}
	if err := d.Create(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Delete deletes the database. It reports whether a database existed.
func (d *Database) Delete(ctx context.Context) (bool, error) {
	if err := d.c.Close(); err != nil {
		return false, fmt.Errorf("dbcontext: %w", err)
	}
	exists, err := d.Exists(ctx)
	if err != nil || !exists {
		return false, err
	}
	if err := d.c.ps.DeleteDatabase(ctx, d.c.conn); err != nil {
		return false, fmt.Errorf("dbcontext: %w", err)
	}
	d.c.logger.Info("database deleted", "database", d.c.conn.Database)
	return true, nil
}

// CompatibleWithModel reports whether the database was created for the
// context's current model. A database without migration history fails
// with a migrations.NoMetadataError when throwIfNoMetadata is set and is
// considered compatible otherwise.
func (d *Database) CompatibleWithModel(ctx context.Context, throwIfNoMetadata bool) (bool, error) {
	exists, err := d.Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		if throwIfNoMetadata {
			return false, &migrations.NoMetadataError{ContextKey: d.c.ContextKey()}
		}
		return true, nil
	}
	db, err := d.c.open()
	if err != nil {
		return false, err
	}
	return d.migrator().CompatibleWithModel(ctx, db, throwIfNoMetadata)
}

// History returns the migration history recorded for the context.
func (d *Database) History(ctx context.Context) ([]store.HistoryRow, error) {
	exists, err := d.Exists(ctx)
	if err != nil || !exists {
		return nil, err
	}
	db, err := d.c.open()
	if err != nil {
		return nil, err
	}
	h := d.migrator().History()
	ok, err := h.Exists(ctx, db)
	if err != nil || !ok {
		return nil, err
	}
	return h.List(ctx, db, d.c.ContextKey())
}

// Initialize runs the database initializer for the context type. Without
// force it runs at most once per context type and database; a failed run
// is retried by the next call.
func (d *Database) Initialize(ctx context.Context, force bool) error {
	info := d.c.info
	info.initMu.Lock()
	defer info.initMu.Unlock()

	key := d.c.conn.ProviderName + "|" + d.c.conn.DataSource
	if !force && info.initialized[key] {
		return nil
	}
	init, err := d.initializer()
	if err != nil {
		return err
	}
	d.c.logger.Debug("initializing database", "database", d.c.conn.Database, "initializer", fmt.Sprintf("%T", init))
	if err := init.InitializeDatabase(ctx, d); err != nil {
		return err
	}
	info.initialized[key] = true
	return nil
}

// initializer selects the initializer for the context type: the
// configuration file's setting, then the one set in code, then
// CreateDatabaseIfNotExists.
func (d *Database) initializer() (services.DatabaseInitializer, error) {
	if s, ok := d.c.cfg.AppConfig().Context(d.c.info.typ.Name()); ok {
		if s.DisableInitialization {
			return services.NullDatabaseInitializer{}, nil
		}
		if s.Initializer != "" {
			return InitializerByName(s.Initializer)
		}
	}
	if init, ok := d.c.cfg.DatabaseInitializer(d.c.info.typ); ok {
		return init, nil
	}
	return &CreateDatabaseIfNotExists{}, nil
}

func (d *Database) migrator() *migrations.Migrator {
	opts := []migrations.Option{
		migrations.WithLogger(d.c.logger),
		migrations.WithContextID(d.c.id),
	}
	if d.c.sink != nil {
		opts = append(opts, migrations.WithLogSink(d.c.sink))
	}
	return migrations.New(d.c.cfg, d.c.model, d.c.conn, d.c.ContextKey(), opts...)
}

// InitializerByName returns the initializer a configuration file names.
func InitializerByName(name string) (services.DatabaseInitializer, error) {
	switch name {
	case appconfig.InitializerCreateIfNotExists:
		return &CreateDatabaseIfNotExists{}, nil
	case appconfig.InitializerDropCreateAlways:
		return &DropCreateDatabaseAlways{}, nil
	case appconfig.InitializerDropCreateIfModelChanges:
		return &DropCreateDatabaseIfModelChanges{}, nil
	case appconfig.InitializerNull:
		return services.NullDatabaseInitializer{}, nil
	}
	return nil, fmt.Errorf("dbcontext: unknown initializer %q", name)
}

// DB returns the context's connection, opening it on demand.
func (d *Database) DB() (*sql.DB, error) { return d.c.open() }

// Owner returns the context value that embeds the database's Context, for
// seed functions.
func (d *Database) Owner() any { return d.c.owner.Interface() }
