package model

// Difficulty enumerates question difficulty levels.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is an immutable exercise item supplied by the course-data
// collaborator. The engine never mutates it.
type Question struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	Score       int        `json:"score"`
}

// IsFinalQuestion reports whether index points at the last question in the
// sequence. Both the timer-expiry and manual-submit paths use this predicate
// so the two triggers cannot diverge.
func IsFinalQuestion(index int, questions []Question) bool {
	return len(questions) > 0 && index == len(questions)-1
}
