package e2etests

import (
	"github.com/RichardKnop/minirel"
)

func (s *TestSuite) TestEmptyDatabase() {
	err := s.db.Ping()
	s.Require().NoError(err)

	_, err = s.db.Exec(`select * from users;`)
	s.Require().Error(err)
	s.Equal("table does not exist: users", err.Error())
}

func (s *TestSuite) TestCreateTable() {
	s.Run("Create users table", func() {
		s.execQuery(createUsersTableSQL, 0)
		s.Equal(0, s.count("users"))
	})

	s.Run("Create table fails if table already exists", func() {
		_, err := s.db.Exec(createUsersTableSQL)
		s.Require().Error(err)
		s.Equal("Table users already exists.", err.Error())
	})

	s.Run("Duplicate column fails", func() {
		_, err := s.db.Exec(`create table dupes (a int, a float);`)
		s.Require().Error(err)
		s.Equal("duplicate column name: a", err.Error())
	})

	s.Run("Create and drop index are accepted", func() {
		s.execQuery(`create index idx_created on users (created);`, 0)
		s.execQuery(`drop index idx_created;`, 0)
	})

	s.Run("Drop table", func() {
		s.execQuery(`drop table users;`, 0)

		_, err := s.db.Exec(`select * from users;`)
		s.Require().Error(err)
	})

	s.Run("Drop table fails if table does not exist", func() {
		_, err := s.db.Exec(`drop table users;`)
		s.Require().Error(err)
		s.Equal("File named users does not exist.", err.Error())
	})
}

func (s *TestSuite) TestInsert() {
	s.execQuery(createUsersTableSQL, 0)

	s.Run("Insert with wrong number of values fails", func() {
		_, err := s.db.Exec(`insert into users values (1, 'a@b.c');`)
		s.Require().Error(err)
		s.Equal("Insert statement has 2 values, expected 6.", err.Error())
	})

	s.Run("Insert into missing table fails", func() {
		_, err := s.db.Exec(`insert into missing values (1);`)
		s.Require().Error(err)
		s.Equal("Table does not exist: missing", err.Error())
	})

	s.Run("Several statements add up rows affected", func() {
		users := s.gen(2)
		s.execQuery(users[0].insertSQL()+users[1].insertSQL(), 2)
		s.Equal(2, s.count("users"))
	})
}

func (s *TestSuite) TestPersistence() {
	s.execQuery(createUsersTableSQL, 0)
	s.execQuery(`create volatile table scratch (id int);`, 0)
	s.execQuery(`insert into scratch values (1);`, 1)

	users := s.gen(50)
	s.insertUsers(users)

	s.reopenDB()

	s.Equal(50, s.count("users"))
	s.Equal(users, s.collectUsers(`select * from users;`))

	_, err := s.db.Exec(`select * from scratch;`)
	s.Require().Error(err)
	s.Equal("table does not exist: scratch", err.Error())
}

func (s *TestSuite) TestTransactionsNotSupported() {
	_, err := s.db.Begin()
	s.Require().Error(err)
	s.ErrorIs(err, minirel.ErrTransactionsNotSupported)
}

func (s *TestSuite) TestArgumentsNotSupported() {
	s.execQuery(createUsersTableSQL, 0)

	_, err := s.db.Exec(`select * from users where id = 1;`, 1)
	s.Require().Error(err)

	stmt, err := s.db.Prepare(`select count(*) from users;`)
	s.Require().NoError(err)
	defer stmt.Close()

	var count int
	s.Require().NoError(stmt.QueryRow().Scan(&count))
	s.Equal(0, count)
}
