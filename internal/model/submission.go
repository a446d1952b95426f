package model

// SubmissionLanguage is the declared language tag for multi-buffer web
// exercises.
const SubmissionLanguage = "html+css+js"

// SubmissionStatusSolved is the status reported for every acknowledged
// submission; grading happens server-side in the course backend.
const SubmissionStatusSolved = "solved"

// SubmissionPayload is the wire record sent per submission. It is built
// fresh for every attempt and never persisted client-side beyond the
// pipeline call.
type SubmissionPayload struct {
	CourseID            string `json:"courseId"`
	ExerciseID          string `json:"exerciseId"`
	QuestionID          string `json:"questionId"`
	AttemptLimitEnabled bool   `json:"attemptLimitEnabled"`
	MaxAttempts         int    `json:"maxAttempts"`
	EntityID            string `json:"entityId"`
	EntityType          string `json:"entityType"`
	Category            string `json:"category"`
	Subcategory         string `json:"subcategory"`
	Code                string `json:"code"`
	Language            string `json:"language"`
	Status              string `json:"status"`
	SpentTime           int    `json:"spentTime"`
}
