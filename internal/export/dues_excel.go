package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/xuri/excelize/v2"
)

// BuildDuesRegister собирает рабочую книгу «реестр долгов» по активным
// студентам: дебет/кредит/баланс на текущий момент. Форматирование здесь —
// тонкая обёртка, ядро отдаёт только числа.
func BuildDuesRegister(ctx context.Context, database *sql.DB) (*excelize.File, error) {
	students, err := db.ListActiveStudents(ctx, database)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Долги"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []string{"SR №", "Студент", "Класс", "Дебет", "Кредит", "Баланс"}
	for c, h := range header {
		cell := fmt.Sprintf("%s1", colName(c+1))
		if err := f.SetCellStr(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}

	r := 2
	for _, st := range students {
		debits, err := db.TotalDebits(ctx, database, st.ID)
		if err != nil {
			return nil, err
		}
		credits, err := db.TotalCredits(ctx, database, st.ID)
		if err != nil {
			return nil, err
		}
		bal := debits - credits
		if bal <= 0 {
			continue // в реестр попадают только должники
		}
		values := []any{st.SrNumber, st.Name, st.CurrentClass, debits, credits, bal}
		for c, v := range values {
			cell := fmt.Sprintf("%s%d", colName(c+1), r)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		r++
	}

	if err := ApplyDefaultExcelFormatting(f, sheet); err != nil {
		return nil, err
	}
	return f, nil
}
