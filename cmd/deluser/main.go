package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"expense-tracker/internal/config"
	"expense-tracker/internal/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run deletes a user account. The user's expenses go with it.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("deluser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	driver := fs.String("driver", cfg.DBDriver, "Database driver (sqlite or postgres)")
	dsn := fs.String("db", "", "Database file path or postgres URL (defaults to DB_PATH or DATABASE_URL)")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")

	if err := fs.Parse(args); err != nil {
		return err
	}

	*username = strings.TrimSpace(*username)
	if *username == "" {
		fmt.Fprintln(stdout, "Usage: deluser -user <username> [-yes] [-db <db_path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	if *dsn == "" {
		cfg.DBDriver = *driver
		*dsn = cfg.DSN()
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, *driver, *dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	user, err := db.GetUserByUsername(ctx, *username)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("user %s not found", *username)
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	count, err := db.CountExpenses(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to count expenses: %w", err)
	}

	if !*yes {
		fmt.Fprintf(stdout, "Delete user %s and %d expense(s)? [y/N]: ", user.Username, count)
		answer, _ := bufio.NewReader(stdin).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Fprintln(stdout, "Aborted")
			return nil
		}
	}

	deleted, err := db.DeleteUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if !deleted {
		return fmt.Errorf("user %s not found", *username)
	}

	fmt.Fprintf(stdout, "User %s deleted with %d expense(s)\n", user.Username, count)
	return nil
}
