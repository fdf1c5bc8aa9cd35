package e2etests

func (s *TestSuite) TestDelete() {
	s.execQuery(createUsersTableSQL, 0)

	users := s.gen(30)
	s.insertUsers(users)

	s.Run("Delete rows matching a condition", func() {
		s.execQuery(`delete from users where active;`, 15)
		s.Equal(15, s.count("users"))

		for _, aUser := range s.collectUsers(`select * from users;`) {
			s.False(aUser.Active)
		}
	})

	s.Run("Deleted slots are reused", func() {
		s.insertUsers(users[1:2])
		s.Equal(16, s.count("users"))
	})

	s.Run("Delete with no match", func() {
		s.execQuery(`delete from users where id > 100;`, 0)
	})

	s.Run("Delete from missing table fails", func() {
		_, err := s.db.Exec(`delete from missing;`)
		s.Require().Error(err)
		s.Contains(err.Error(), "table does not exist")
	})

	s.Run("Delete all rows", func() {
		s.execQuery(`delete from users;`, 16)
		s.Equal(0, s.count("users"))
	})
}
