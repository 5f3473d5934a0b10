package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobLogKey_FormatsStdoutAndStderr(t *testing.T) {
	assert.Equal(t, "jobs/job-1/stdout.log", JobLogKey("job-1", LogStreamStdout))
	assert.Equal(t, "jobs/job-1/stderr.log", JobLogKey("job-1", LogStreamStderr))
}

func TestValidateJobLogKey(t *testing.T) {
	assert.NoError(t, ValidateJobLogKey("jobs/job-1/stdout.log"))

	assert.ErrorIs(t, ValidateJobLogKey(""), ErrInvalidKey)
	assert.ErrorIs(t, ValidateJobLogKey("/jobs/job-1/stdout.log"), ErrInvalidKey)
	assert.ErrorIs(t, ValidateJobLogKey("jobs/../etc/passwd"), ErrInvalidKey)
	assert.ErrorIs(t, ValidateJobLogKey("other/job-1/stdout.log"), ErrInvalidKey)
}
