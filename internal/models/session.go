package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Учебная сессия: всегда 1 апреля — 31 марта, имя формата "2024-25".
type Session struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	IsCurrent bool      `db:"is_current"`
	IsActive  bool      `db:"is_active"`
}

var sessionNameRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// ParseSessionName проверяет формат "YYYY-YY" и что второй год = первый + 1.
func ParseSessionName(name string) (startYear int, err error) {
	m := sessionNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("имя сессии %q не соответствует формату YYYY-YY", name)
	}
	y, _ := strconv.Atoi(m[1])
	tail, _ := strconv.Atoi(m[2])
	if (y+1)%100 != tail {
		return 0, fmt.Errorf("имя сессии %q: второй год должен быть %02d", name, (y+1)%100)
	}
	return y, nil
}

// SessionStart возвращает начало сессии для стартового года (1 апреля, 00:00).
func SessionStart(startYear int, loc *time.Location) time.Time {
	return time.Date(startYear, time.April, 1, 0, 0, 0, 0, loc)
}

// SessionEnd — 31 марта следующего года.
func SessionEnd(startYear int, loc *time.Location) time.Time {
	return time.Date(startYear+1, time.March, 31, 0, 0, 0, 0, loc)
}

// SessionBounds — пара границ [1 апреля, 31 марта] для стартового года.
func SessionBounds(startYear int, loc *time.Location) (time.Time, time.Time) {
	return SessionStart(startYear, loc), SessionEnd(startYear, loc)
}

// SessionStartYearFor — стартовый год сессии, в которую попадает момент t
// (например, 2025-02-01 → 2024).
func SessionStartYearFor(t time.Time) int {
	if t.Month() < time.April {
		return t.Year() - 1
	}
	return t.Year()
}

// SessionNameFor форматирует имя сессии по стартовому году: 2024 → "2024-25".
func SessionNameFor(startYear int) string {
	return fmt.Sprintf("%d-%02d", startYear, (startYear+1)%100)
}
