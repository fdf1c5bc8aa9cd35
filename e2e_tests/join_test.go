package e2etests

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
)

type userOrder struct {
	Name   string
	Amount float64
}

func (s *TestSuite) setupOrders(db *sql.DB) {
	for _, query := range []string{
		createUsersTableSQL,
		createOrdersTableSQL,
		createPaymentsTableSQL,
	} {
		_, err := db.Exec(query)
		s.Require().NoError(err)
	}

	for _, aUser := range s.gen(4) {
		_, err := db.Exec(aUser.insertSQL())
		s.Require().NoError(err)
	}

	// users 1 and 2 have two orders each, user 4 has none
	for i, userID := range []int{1, 2, 1, 3, 2} {
		_, err := db.Exec(fmt.Sprintf(`insert into orders values (%d, %d, %d);`, i+1, userID, (i+1)*10))
		s.Require().NoError(err)
	}

	// users 1 and 3 paid, payments share user_id with orders
	for i, userID := range []int{1, 3} {
		_, err := db.Exec(fmt.Sprintf(`insert into payments values (%d, %d, %d);`, i+1, userID, (i+1)*5))
		s.Require().NoError(err)
	}
}

type orderPayment struct {
	Order   float64
	Payment float64
}

// collectOrderPayments joins three tables, the first two conjuncts only
// reference users and orders.
func (s *TestSuite) collectOrderPayments(db *sql.DB) []orderPayment {
	rows, err := db.Query(`select orders.amount, payments.amount from users, orders, payments where users.id = orders.user_id and orders.amount > 15 and payments.user_id = users.id order by orders.amount;`)
	s.Require().NoError(err)
	defer rows.Close()

	var results []orderPayment
	for rows.Next() {
		var result orderPayment
		s.Require().NoError(rows.Scan(&result.Order, &result.Payment))
		results = append(results, result)
	}
	s.Require().NoError(rows.Err())
	return results
}

func (s *TestSuite) collectUserOrders(db *sql.DB, query string) []userOrder {
	rows, err := db.QueryContext(context.Background(), query)
	s.Require().NoError(err)
	defer rows.Close()

	var results []userOrder
	for rows.Next() {
		var result userOrder
		s.Require().NoError(rows.Scan(&result.Name, &result.Amount))
		results = append(results, result)
	}
	s.Require().NoError(rows.Err())
	return results
}

func (s *TestSuite) TestJoin() {
	s.setupOrders(s.db)

	var names []string
	rows, err := s.db.Query(`select name from users order by id;`)
	s.Require().NoError(err)
	for rows.Next() {
		var name string
		s.Require().NoError(rows.Scan(&name))
		names = append(names, name)
	}
	s.Require().NoError(rows.Err())
	s.Require().NoError(rows.Close())
	s.Require().Len(names, 4)

	expected := []userOrder{
		{names[0], 10},
		{names[1], 20},
		{names[0], 30},
		{names[2], 40},
		{names[1], 50},
	}

	s.Run("Join over a product", func() {
		actual := s.collectUserOrders(s.db, `select users.name, orders.amount from users, orders where users.id = orders.user_id order by orders.amount;`)
		s.Equal(expected, actual)
	})

	s.Run("Join with aliases", func() {
		actual := s.collectUserOrders(s.db, `select u.name, o.amount from users u, orders o where u.id = o.user_id and o.amount > 25 order by o.amount;`)
		s.Equal(expected[2:], actual)
	})

	s.Run("Group over a join", func() {
		var count int
		err := s.db.QueryRow(`select count(*) from users, orders where users.id = orders.user_id and users.id = 1;`).Scan(&count)
		s.Require().NoError(err)
		s.Equal(2, count)
	})

	s.Run("Cartesian product", func() {
		var count int
		err := s.db.QueryRow(`select count(*) from users, orders;`).Scan(&count)
		s.Require().NoError(err)
		s.Equal(20, count)
	})

	s.Run("Three tables", func() {
		s.Equal([]orderPayment{{30, 5}, {40, 10}}, s.collectOrderPayments(s.db))
	})

	s.Run("Ambiguous attribute fails", func() {
		_, err := s.db.Query(`select user_id from orders, payments;`)
		s.Require().Error(err)
		s.Contains(err.Error(), "ambiguous attribute")

		_, err = s.db.Query(`select amount from users, orders, payments where users.id = orders.user_id;`)
		s.Require().Error(err)
		s.Contains(err.Error(), "ambiguous attribute")
	})

	s.Run("Qualified shared attribute", func() {
		var count int
		err := s.db.QueryRow(`select count(*) from orders, payments where orders.user_id = payments.user_id;`).Scan(&count)
		s.Require().NoError(err)
		s.Equal(3, count)
	})

	s.Run("Same table twice fails", func() {
		_, err := s.db.Query(`select a.id from users a, users b;`)
		s.Require().Error(err)
		s.Contains(err.Error(), "table listed more than once")
	})
}

func (s *TestSuite) TestJoinAlgorithms() {
	for _, params := range []string{
		"?rewrite_joins=true&join=nested_loop",
		"?rewrite_joins=true&join=one_pass",
		"?rewrite_joins=true&join=multi_pass&partitions=3",
	} {
		s.Run(params, func() {
			db, err := sql.Open("minirel", filepath.Join(s.T().TempDir(), "join.dsk")+params)
			s.Require().NoError(err)
			defer db.Close()

			s.setupOrders(db)

			actual := s.collectUserOrders(db, `select users.name, orders.amount from users, orders where users.id = orders.user_id order by orders.amount;`)
			s.Require().Len(actual, 5)

			var amounts []float64
			for _, result := range actual {
				amounts = append(amounts, result.Amount)
			}
			s.Equal([]float64{10, 20, 30, 40, 50}, amounts)

			s.Equal([]orderPayment{{30, 5}, {40, 10}}, s.collectOrderPayments(db))
		})
	}
}
