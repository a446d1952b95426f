package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionStartKey returns the cache key for a student's session start time
func (r *CacheKeyStruct) StudentSessionStartKey(exerciseID string, studentID int) string {
	return fmt.Sprintf("student:%d:exercise:%s:session_start", studentID, exerciseID)
}

// StudentBuffersKey returns the cache key for a student's autosaved source buffers
func (r *CacheKeyStruct) StudentBuffersKey(exerciseID string, studentID int) string {
	return fmt.Sprintf("student:%d:exercise:%s:buffers", studentID, exerciseID)
}

// StudentActiveExerciseKey returns the cache key for a student's currently active exercise
func (r *CacheKeyStruct) StudentActiveExerciseKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_exercise", studentID)
}

// ExerciseStatusKey returns the cache key for a cached exercise-status response
func (r *CacheKeyStruct) ExerciseStatusKey(exerciseID string, studentID int) string {
	return fmt.Sprintf("student:%d:exercise:%s:status", studentID, exerciseID)
}

var CacheKey = NewCacheKeyStruct()
