package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPayloadKey returns the cache key for an exam's sanitized question list.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// AutosaveRateKey returns the counter key limiting a student's autosaves for one minute window.
func (r *CacheKeyStruct) AutosaveRateKey(studentID string, window int64) string {
	return fmt.Sprintf("student:%s:autosave_rate:%d", studentID, window)
}

var CacheKey = NewCacheKeyStruct()
