package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apply-agent-go/internal/storage/models"
	"apply-agent-go/internal/types"
)

func TestJobRecordConversion(t *testing.T) {
	job := types.Job{
		JobID:           "job-1",
		Title:           "Backend Engineer",
		Company:         "Acme",
		Location:        "Remote",
		Description:     "写Go的",
		ApplicationURL:  "https://jobs.lever.co/acme/abc123",
		Platform:        types.PlatformLever,
		WorkType:        "remote",
		JobType:         "full_time",
		ExperienceLevel: "senior",
		Salary:          "open",
		FetchedAt:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	record := jobToRecord(&job)
	back := recordToJob(&record)
	assert.Equal(t, job, back, "岗位经过库记录往返后不应该丢字段")
	assert.Equal(t, "https://jobs.lever.co/acme/abc123/apply", back.ApplyURL(), "Lever岗位的申请地址应该带/apply后缀")
}

func TestProfileRecordConversion(t *testing.T) {
	doc := &types.Profile{ProfileID: "p1", OwnerID: "owner-a"}
	doc.PersonalInformation.BasicInformation.FirstName = "Wei"
	doc.PersonalInformation.BasicInformation.LastName = "Chen"
	doc.PersonalInformation.ContactInformation.Email = "wei@example.com"
	doc.ResumeFileRef = "p1/resume.pdf"

	record, err := profileToRecord(doc)
	require.NoError(t, err)
	assert.Equal(t, "p1", record.ProfileID)
	assert.Equal(t, "p1/resume.pdf", record.ResumeObjectKey)

	// 列值是权威来源，文档里的旧值被覆盖
	record.OwnerID = "owner-b"
	back, err := recordToProfile(record)
	require.NoError(t, err)
	assert.Equal(t, "owner-b", back.OwnerID, "owner以库列为准")
	assert.Equal(t, "Wei Chen", back.FullName())
}

func TestRecordToProfileEmptyDocument(t *testing.T) {
	back, err := recordToProfile(&models.Profile{ProfileID: "p2", OwnerID: "o"})
	require.NoError(t, err)
	assert.Equal(t, "p2", back.ProfileID, "空文档也要能还原出档案骨架")
}
