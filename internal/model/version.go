package model

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Deref returns the value of a nullable version counter, treating nil as never synced.
func Deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
