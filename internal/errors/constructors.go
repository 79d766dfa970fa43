package errors

// Convenience constructors for common error patterns

// Config errors

func ConfigInvalid(reason string, cause error) *RunnerError {
	return Wrap(cause, CategoryConfig, SeverityFatal, reason)
}

func ConfigRequired(field string) *RunnerError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *RunnerError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Stage errors

func NeighborFlushFailed(cause error) *RunnerError {
	return Wrap(cause, CategoryNeighbor, SeverityFatal, "neighbor cache flush failed")
}

func EnvPlanFailed(cause error) *RunnerError {
	return Wrap(cause, CategoryConfig, SeverityFatal, "environment plan invalid")
}

func BuildFailed(cause error) *RunnerError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "engine build failed")
}

func ResolveFailed(target string, cause error) *RunnerError {
	return Wrap(cause, CategoryResolve, SeverityFatal, "artifact resolution failed").
		WithContext("target", target)
}

func LaunchFailed(cause error) *RunnerError {
	return Wrap(cause, CategoryLaunch, SeverityFatal, "engine launch failed")
}

// Internal errors

func InternalError(message string, cause error) *RunnerError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
