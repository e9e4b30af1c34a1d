// Package russian holds the single Russian-plural word-selection rule
// needed to announce the remaining-topic count (§4.7 transition 3,
// Design Note 9: "keep in one place").
package russian

// TopicWord returns the correctly declined word for "topic" given a
// count, by its last digits: ending in 1 -> "тема", ending in 2-4 ->
// "темы", everything else -> "тем", except that 11-14 (mod 100) always
// take "тем". So 1 -> "тема", 2-4 -> "темы", 5-20 -> "тем", 21 ->
// "тема", 22 -> "темы".
func TopicWord(n int) string {
	mod100 := n % 100
	if mod100 >= 11 && mod100 <= 14 {
		return "тем"
	}
	switch n % 10 {
	case 1:
		return "тема"
	case 2, 3, 4:
		return "темы"
	default:
		return "тем"
	}
}
