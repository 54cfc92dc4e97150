package models

import "time"

type TransportRoute struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

// Помесячная плата маршрута для класса.
type TransportRouteFee struct {
	RouteID    int64   `db:"route_id"`
	ClassName  string  `db:"class_name"`
	MonthlyFee float64 `db:"monthly_fee"`
}

// Период пользования транспортом: [StartDate, EndDate], EndDate=nil — активна.
type TransportEnrollment struct {
	ID        int64      `db:"id"`
	StudentID int64      `db:"student_id"`
	RouteID   int64      `db:"route_id"`
	StartDate time.Time  `db:"start_date"`
	EndDate   *time.Time `db:"end_date"`
}
