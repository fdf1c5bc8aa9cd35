package e2etests

import (
	"cmp"
	"slices"
)

func (s *TestSuite) TestSelect() {
	s.execQuery(createUsersTableSQL, 0)

	users := s.gen(20)
	s.insertUsers(users)

	s.Run("Select all rows", func() {
		s.Equal(users, s.collectUsers(`select * from users;`))
	})

	s.Run("Select with a boolean condition", func() {
		var expected []user
		for _, aUser := range users {
			if aUser.Active {
				expected = append(expected, aUser)
			}
		}
		s.Equal(expected, s.collectUsers(`select * from users where active;`))
	})

	s.Run("Select with arithmetic in the condition", func() {
		var expected []int64
		for _, aUser := range users {
			if aUser.Score >= 50 {
				expected = append(expected, aUser.ID)
			}
		}
		s.Equal(expected, s.collectIDs(`select id from users where score * 2 >= 100 order by id;`))
	})

	s.Run("Order by several attributes", func() {
		sorted := slices.Clone(users)
		slices.SortStableFunc(sorted, func(a, b user) int {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		expected := make([]int64, 0, len(sorted))
		for _, aUser := range sorted {
			expected = append(expected, aUser.ID)
		}
		s.Equal(expected, s.collectIDs(`select id from users order by score desc, id;`))
	})

	s.Run("Limit", func() {
		s.Equal([]int64{20, 19, 18}, s.collectIDs(`select id from users order by id desc limit 3;`))
		s.Empty(s.collectIDs(`select id from users limit 0;`))
	})

	s.Run("Distinct", func() {
		rows, err := s.db.Query(`select distinct active from users order by active;`)
		s.Require().NoError(err)
		defer rows.Close()

		var values []bool
		for rows.Next() {
			var active bool
			s.Require().NoError(rows.Scan(&active))
			values = append(values, active)
		}
		s.Require().NoError(rows.Err())
		s.Equal([]bool{false, true}, values)
	})

	s.Run("Aggregates without group by", func() {
		var (
			count, minID, maxID int64
			avgScore            float64
			expectedAvg         float64
		)
		for _, aUser := range users {
			expectedAvg += aUser.Score
		}
		expectedAvg /= float64(len(users))

		err := s.db.QueryRow(`select count(*), min(id), max(id), avg(score) from users;`).Scan(&count, &minID, &maxID, &avgScore)
		s.Require().NoError(err)
		s.Equal(int64(20), count)
		s.Equal(int64(1), minID)
		s.Equal(int64(20), maxID)
		s.InDelta(expectedAvg, avgScore, 0.0001)
	})

	s.Run("Group by", func() {
		rows, err := s.db.Query(`select active, count(*), max(score) from users group by active order by active;`)
		s.Require().NoError(err)
		defer rows.Close()

		columns, err := rows.Columns()
		s.Require().NoError(err)
		s.Equal([]string{"active", "COUNT(*)", "MAX(score)"}, columns)

		expectedMax := map[bool]float64{}
		for _, aUser := range users {
			expectedMax[aUser.Active] = max(expectedMax[aUser.Active], aUser.Score)
		}

		var groups []bool
		for rows.Next() {
			var (
				active   bool
				count    int
				maxScore float64
			)
			s.Require().NoError(rows.Scan(&active, &count, &maxScore))
			s.Equal(10, count)
			s.Equal(expectedMax[active], maxScore)
			groups = append(groups, active)
		}
		s.Require().NoError(rows.Err())
		s.Equal([]bool{false, true}, groups)
	})

	s.Run("Table alias", func() {
		var name string
		err := s.db.QueryRow(`select u.name from users as u where u.id = 3;`).Scan(&name)
		s.Require().NoError(err)
		s.Equal(users[2].Name, name)
	})

	s.Run("Unknown attribute fails", func() {
		_, err := s.db.Query(`select missing from users;`)
		s.Require().Error(err)
		s.Contains(err.Error(), "attribute does not exist")
	})

	s.Run("Plain attribute next to an aggregate fails", func() {
		_, err := s.db.Query(`select name, count(*) from users;`)
		s.Require().Error(err)
		s.Contains(err.Error(), "attribute must appear in GROUP BY")
	})

	s.Run("Aggregate in where fails", func() {
		_, err := s.db.Query(`select id from users where count(*) > 1;`)
		s.Require().Error(err)
		s.Contains(err.Error(), "aggregates are not allowed")
	})
}
