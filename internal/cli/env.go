package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/database"
	"github.com/iliyamo/slotswap/internal/repository"
	"github.com/iliyamo/slotswap/internal/swap"
)

// env is what a command needs once the database is open.
type env struct {
	db      *sqlx.DB
	read    *sqlx.DB
	dialect database.Dialect
	users   *repository.UserRepo
	engine  *swap.Engine
}

func (e *env) Close() error {
	if e.read != nil {
		_ = e.read.Close()
	}
	return e.db.Close()
}

// open connects to the database named by the global flags. Commands other
// than migrate expect the schema to be current.
func open(opts *RootOptions) (*env, error) {
	dialect, err := database.ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	cc := database.ConnConfig{Path: opts.DB}
	if dialect == database.MySQL {
		if err := config.LoadDotEnv(); err != nil {
			return nil, err
		}
		cc = database.ConnConfig{
			User: os.Getenv("DB_USER"), Pass: os.Getenv("DB_PASS"),
			Host: os.Getenv("DB_HOST"), Port: os.Getenv("DB_PORT"), Name: os.Getenv("DB_NAME"),
		}
	}
	db, err := database.Connect(dialect, cc)
	if err != nil {
		return nil, err
	}
	read, err := database.ConnectReader(dialect, cc)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	users := repository.NewUserRepo(db)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &env{
		db:      db,
		read:    read,
		dialect: dialect,
		users:   users,
		engine:  swap.New(db, dialect, users, nil, swap.WithLogger(quiet), swap.WithReadDB(read)),
	}, nil
}

// withEnv opens the database, runs fn and closes it again.
func withEnv(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, e *env) error) error {
	e, err := open(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer e.Close()
	return fn(ctx, e)
}

func acting(opts *RootOptions) (string, error) {
	if opts.As == "" {
		return "", NewExitError(ExitCommandError, "--as <user-id> is required")
	}
	return opts.As, nil
}
