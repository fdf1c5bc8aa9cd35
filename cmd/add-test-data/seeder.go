package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/minirel"
)

const (
	createUsersSQL = `CREATE TABLE users (
	id INT,
	email VARCHAR(64),
	name VARCHAR(32),
	score FLOAT,
	active BOOLEAN,
	created DATETIME
)`

	createOrdersSQL = `CREATE TABLE orders (
	order_id INT,
	user_id INT,
	amount FLOAT
)`
)

var errTablesExist = errors.New("test data tables already exist")

type seeder struct {
	db     *minirel.Database
	faker  *gofakeit.Faker
	logger *zap.Logger
}

func newSeeder(db *minirel.Database, faker *gofakeit.Faker, logger *zap.Logger) *seeder {
	return &seeder{
		db:     db,
		faker:  faker,
		logger: logger,
	}
}

// seed creates the users and orders tables and fills them. Order user ids
// always reference an existing user.
func (s *seeder) seed(ctx context.Context, users, orders int) error {
	if users <= 0 && orders > 0 {
		return fmt.Errorf("orders need at least one user")
	}

	tables, err := s.db.Tables(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(tables, "users") || slices.Contains(tables, "orders") {
		return errTablesExist
	}

	for _, sql := range []string{createUsersSQL, createOrdersSQL} {
		if _, err := s.exec(ctx, sql); err != nil {
			return err
		}
	}

	since := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= users; i++ {
		created := s.faker.DateRange(since, since.AddDate(5, 0, 0))
		sql := fmt.Sprintf(
			"INSERT INTO users VALUES (%d, '%s', '%s', %.2f, %t, '%s')",
			i,
			quote(truncate(s.faker.Email(), 64)),
			quote(truncate(s.faker.Name(), 32)),
			s.faker.Float64Range(0, 100),
			s.faker.Bool(),
			created.Format(time.DateTime),
		)
		if _, err := s.exec(ctx, sql); err != nil {
			return fmt.Errorf("error inserting user %d: %w", i, err)
		}
	}

	for i := 1; i <= orders; i++ {
		sql := fmt.Sprintf(
			"INSERT INTO orders VALUES (%d, %d, %.2f)",
			i,
			s.faker.IntRange(1, users),
			s.faker.Price(1, 500),
		)
		if _, err := s.exec(ctx, sql); err != nil {
			return fmt.Errorf("error inserting order %d: %w", i, err)
		}
	}

	s.logger.Sugar().With("users", users, "orders", orders).Info("inserted test data")

	return nil
}

func (s *seeder) exec(ctx context.Context, sql string) (minirel.Result, error) {
	statements, err := s.db.PrepareStatements(ctx, sql)
	if err != nil {
		return minirel.Result{}, err
	}

	var aResult minirel.Result
	for _, stmt := range statements {
		aResult, err = s.db.Exec(ctx, stmt)
		if err != nil {
			return minirel.Result{}, err
		}
		if aResult.Message != "" {
			return minirel.Result{}, errors.New(aResult.Message)
		}
	}
	return aResult, nil
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
