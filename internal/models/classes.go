package models

// Фиксированный порядок классов; перевод при rollover идёт строго по нему.
var ClassOrder = []string{
	"NC", "LKG", "UKG",
	"1st", "2nd", "3rd", "4th", "5th", "6th",
	"7th", "8th", "9th", "10th", "11th", "12th",
}

const SeniorClass = "12th"

// AllClasses — маркер для fee structure, не зависящей от класса (admission fee).
const AllClasses = "ALL"

func classIndex(class string) int {
	for i, c := range ClassOrder {
		if c == class {
			return i
		}
	}
	return -1
}

// IsKnownClass — валидация названия класса.
func IsKnownClass(class string) bool { return classIndex(class) >= 0 }

// NextClass — класс на ступень выше; для 12th возвращает ("", false):
// дальше либо деактивация, либо остаёмся терминальным 12th.
func NextClass(class string) (string, bool) {
	i := classIndex(class)
	if i < 0 || i == len(ClassOrder)-1 {
		return "", false
	}
	return ClassOrder[i+1], true
}

// PrevClass — обратный шаг, используется только при откате promotion.
func PrevClass(class string) (string, bool) {
	i := classIndex(class)
	if i <= 0 {
		return "", false
	}
	return ClassOrder[i-1], true
}

// IsSeniorClass — 9th…12th: годовая плата + регистрационный сбор.
func IsSeniorClass(class string) bool {
	i := classIndex(class)
	return i >= classIndex("9th")
}
