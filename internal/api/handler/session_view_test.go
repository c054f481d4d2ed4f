package handler

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apply-agent-go/internal/session"
	"apply-agent-go/internal/types"
)

func TestSessionViewProgressBreakdown(t *testing.T) {
	s := &session.Session{
		ID:           "s-1",
		OwnerID:      "owner-1",
		ProfileID:    "p-1",
		State:        session.SessionInProgress,
		CurrentIndex: 3,
		Jobs: []session.JobTask{
			{Index: 0, Job: types.Job{JobID: "a"}, State: session.JobSubmitted},
			{Index: 1, Job: types.Job{JobID: "b"}, State: session.JobFailed, FailReason: session.ReasonTimeout},
			{Index: 2, Job: types.Job{JobID: "c"}, State: session.JobSkipped},
			{Index: 3, Job: types.Job{JobID: "d"}, State: session.JobFormFilling},
			{Index: 4, Job: types.Job{JobID: "e"}, State: session.JobPending},
		},
	}

	view := sessionView(s)
	assert.Equal(t, "s-1", view["session_id"])
	assert.Equal(t, "owner-1", view["owner_id"])
	assert.Equal(t, 3, view["done"], "done只数进入终态的职位")
	assert.Equal(t, 5, view["total"])

	progress, ok := view["progress"].(utils.H)
	require.True(t, ok)
	assert.Equal(t, 1, progress["submitted"])
	assert.Equal(t, 1, progress["failed"])
	assert.Equal(t, 1, progress["skipped"])
	assert.Equal(t, 2, progress["remaining"], "填写中和排队中都算未完成")

	jobs, ok := view["jobs"].([]utils.H)
	require.True(t, ok)
	require.Len(t, jobs, 5)
	assert.Equal(t, session.ReasonTimeout, jobs[1]["fail_reason"], "失败职位带失败原因")
	_, hasReason := jobs[0]["fail_reason"]
	assert.False(t, hasReason, "非失败职位不带失败原因")
}
