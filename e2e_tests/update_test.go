package e2etests

func (s *TestSuite) TestUpdate() {
	s.execQuery(createUsersTableSQL, 0)

	users := s.gen(10)
	s.insertUsers(users)

	s.Run("Update rows matching a condition", func() {
		var expected int
		for _, aUser := range users {
			if aUser.Active {
				expected++
			}
		}
		s.execQuery(`update users set score = score + 1000 where active;`, expected)

		for _, aUser := range s.collectUsers(`select * from users;`) {
			if aUser.Active {
				s.GreaterOrEqual(aUser.Score, 1000.0)
			} else {
				s.Less(aUser.Score, 1000.0)
			}
		}
	})

	s.Run("Update a single row", func() {
		s.execQuery(`update users set name = 'renamed' where id = 1;`, 1)

		var name string
		err := s.db.QueryRow(`select name from users where id = 1;`).Scan(&name)
		s.Require().NoError(err)
		s.Equal("renamed", name)
	})

	s.Run("Update every row", func() {
		s.execQuery(`update users set active = false;`, 10)
		s.Empty(s.collectUsers(`select * from users where active;`))
	})

	s.Run("Update with no match", func() {
		s.execQuery(`update users set score = 0 where id > 100;`, 0)
	})

	s.Run("Update unknown attribute fails", func() {
		_, err := s.db.Exec(`update users set missing = 1;`)
		s.Require().Error(err)
		s.Contains(err.Error(), "attribute does not exist")
	})
}
