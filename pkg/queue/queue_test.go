package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewJob_WrapsPayload(t *testing.T) {
	p := OwnerAssignedPayload{TenantID: uuid.New(), EventID: uuid.New(), UserID: uuid.New(), RoleID: uuid.New()}
	job, err := NewJob(JobTypeOwnerAssigned, p)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Equal(t, JobTypeOwnerAssigned, job.Type)
	require.Zero(t, job.Attempt)

	var got OwnerAssignedPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	require.Equal(t, p, got)
}
