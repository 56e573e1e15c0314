package dbcontext

import (
	"context"
	"fmt"

	"github.com/roach88/codefirst/internal/services"
)

// SeedFunc fills a freshly created database. Seed functions usually add
// entities through db.Owner() and save them.
type SeedFunc func(ctx context.Context, db *Database) error

// CreateDatabaseIfNotExists creates the database when it is missing. An
// existing database created for a different model is an
// IncompatibleModelError.
type CreateDatabaseIfNotExists struct {
	Seed SeedFunc
}

// InitializeDatabase implements services.DatabaseInitializer.
func (i *CreateDatabaseIfNotExists) InitializeDatabase(ctx context.Context, db services.Database) error {
	exists, err := db.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		ok, err := db.CompatibleWithModel(ctx, false)
		if err != nil {
			return err
		}
		if !ok {
			return incompatible(db)
		}
		return nil
	}
	if err := db.Create(ctx); err != nil {
		return err
	}
	return seed(ctx, db, i.Seed)
}

// DropCreateDatabaseAlways recreates the database on every initialization.
type DropCreateDatabaseAlways struct {
	Seed SeedFunc
}

// InitializeDatabase implements services.DatabaseInitializer.
func (i *DropCreateDatabaseAlways) InitializeDatabase(ctx context.Context, db services.Database) error {
	if _, err := db.Delete(ctx); err != nil {
		return err
	}
	if err := db.Create(ctx); err != nil {
		return err
	}
	return seed(ctx, db, i.Seed)
}

// DropCreateDatabaseIfModelChanges recreates the database when its model
// hash differs from the context's model. A database without migration
// history cannot be checked and is an error.
type DropCreateDatabaseIfModelChanges struct {
	Seed SeedFunc
}

// InitializeDatabase implements services.DatabaseInitializer.
func (i *DropCreateDatabaseIfModelChanges) InitializeDatabase(ctx context.Context, db services.Database) error {
	exists, err := db.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		ok, err := db.CompatibleWithModel(ctx, true)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if _, err := db.Delete(ctx); err != nil {
			return err
		}
	}
	if err := db.Create(ctx); err != nil {
		return err
	}
	return seed(ctx, db, i.Seed)
}

func seed(ctx context.Context, db services.Database, f SeedFunc) error {
	if f == nil {
		return nil
	}
	d, ok := db.(*Database)
	if !ok {
		return fmt.Errorf("dbcontext: seeding needs a *Database, got %T", db)
	}
	if err := f(ctx, d); err != nil {
		return fmt.Errorf("dbcontext: seed: %w", err)
	}
	return nil
}

func incompatible(db services.Database) error {
	if d, ok := db.(*Database); ok {
		return &IncompatibleModelError{ContextType: d.c.info.typ, Database: d.c.conn.Database}
	}
	return &IncompatibleModelError{}
}
