// Package days содержит расчёты, связанные с длительностью подписки в днях.
package days

import "time"

// Day длительность одних суток, используемая для окон подписки.
const Day = 24 * time.Hour

// Add возвращает момент окончания окна длительностью n суток, начиная со start.
func Add(start time.Time, n int) time.Time {
	return start.Add(time.Duration(n) * Day)
}

// Remaining считает количество полных суток между now и end.
// Дробная часть отбрасывается, отрицательный результат приводится к нулю.
func Remaining(now, end time.Time) int {
	if !end.After(now) {
		return 0
	}
	return int(end.Sub(now) / Day)
}
