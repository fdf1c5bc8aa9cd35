package e2etests

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/suite"

	_ "github.com/RichardKnop/minirel"
)

const (
	createUsersTableSQL = `create table users (
	id int,
	email varchar(64),
	name varchar(32),
	score float,
	active boolean,
	created datetime
);`

	createOrdersTableSQL = `create table orders (
	order_id int,
	user_id int,
	amount float
);`

	createPaymentsTableSQL = `create table payments (
	payment_id int,
	user_id int,
	amount float
);`

	connParams = "?persistent_blocks=32&cache_blocks=32&block_size=1024"
)

var createdAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type user struct {
	ID      int64
	Email   string
	Name    string
	Score   float64
	Active  bool
	Created time.Time
}

func (u user) insertSQL() string {
	return fmt.Sprintf(
		"insert into users values (%d, '%s', '%s', %d, %t, '%s');",
		u.ID,
		escape(u.Email),
		escape(u.Name),
		int64(u.Score),
		u.Active,
		u.Created.Format("2006-01-02 15:04:05"),
	)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

type TestSuite struct {
	suite.Suite
	dbPath string
	db     *sql.DB
	faker  *gofakeit.Faker
}

func TestEndToEnd(t *testing.T) {
	suite.Run(t, new(TestSuite))
}

func (s *TestSuite) SetupTest() {
	s.dbPath = filepath.Join(s.T().TempDir(), "db.dsk")
	s.faker = gofakeit.New(uint64(time.Now().Unix()))
	s.openDB()
}

func (s *TestSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

func (s *TestSuite) openDB() {
	var err error
	s.db, err = sql.Open("minirel", s.dbPath+connParams)
	s.Require().NoError(err)
}

func (s *TestSuite) reopenDB() {
	s.Require().NoError(s.db.Close())
	s.openDB()
}

// gen returns n users with ids 1..n, every other one active and scores
// spread over 0..100.
func (s *TestSuite) gen(n int) []user {
	users := make([]user, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, user{
			ID:      int64(i),
			Email:   s.faker.LetterN(10) + "@example.com",
			Name:    s.faker.LetterN(12),
			Score:   float64(s.faker.Number(0, 100)),
			Active:  i%2 == 0,
			Created: createdAt.Add(time.Duration(i) * time.Hour),
		})
	}
	return users
}

func (s *TestSuite) insertUsers(users []user) {
	for _, aUser := range users {
		s.execQuery(aUser.insertSQL(), 1)
	}
}

func (s *TestSuite) execQuery(query string, expectedRowsAffected int) {
	aResult, err := s.db.ExecContext(context.Background(), query)
	s.Require().NoError(err)
	rowsAffected, err := aResult.RowsAffected()
	s.Require().NoError(err)
	s.Require().Equal(expectedRowsAffected, int(rowsAffected))
}

func (s *TestSuite) collectUsers(query string) []user {
	rows, err := s.db.QueryContext(context.Background(), query)
	s.Require().NoError(err)
	defer rows.Close()

	var users []user
	for rows.Next() {
		var aUser user
		err := rows.Scan(&aUser.ID, &aUser.Email, &aUser.Name, &aUser.Score, &aUser.Active, &aUser.Created)
		s.Require().NoError(err)
		users = append(users, aUser)
	}
	s.Require().NoError(rows.Err())
	return users
}

func (s *TestSuite) collectIDs(query string) []int64 {
	rows, err := s.db.QueryContext(context.Background(), query)
	s.Require().NoError(err)
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		s.Require().NoError(rows.Scan(&id))
		ids = append(ids, id)
	}
	s.Require().NoError(rows.Err())
	return ids
}

func (s *TestSuite) count(table string) int {
	var count int
	err := s.db.QueryRow(`select count(*) from ` + table + `;`).Scan(&count)
	s.Require().NoError(err)
	return count
}
