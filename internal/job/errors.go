package job

import "errors"

// Sentinel errors for the job package.
var (
	// ErrEmptyPipeline is returned when a pipeline has no stages.
	ErrEmptyPipeline = errors.New("empty pipeline")

	// ErrEmptyStage is returned when a pipeline stage has no argument vector.
	ErrEmptyStage = errors.New("pipeline stage has no command")

	// ErrPgidAlreadySet is returned when a job's process group is assigned twice.
	ErrPgidAlreadySet = errors.New("process group already set")

	// ErrJobNotFound is returned when a handle no longer names a job in the table.
	ErrJobNotFound = errors.New("job not found")
)
