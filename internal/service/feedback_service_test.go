package service

import (
	"testing"

	"marking_backend/internal/model"
	"marking_backend/internal/repository"
	"marking_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackService_Comments(t *testing.T) {
	env := newMarkingEnv(t)
	feedback := NewFeedbackService(repository.NewFeedbackRepository(env.db), env.svc)
	a := env.createAssignment(t, model.Assignment{})
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID

	grade, err := env.svc.GetUserGrade(a.ID, env.students[0].ID, true)
	require.NoError(t, err)

	comments, err := feedback.GetAllComments(grade.ID)
	require.NoError(t, err)
	assert.NotNil(t, comments)
	assert.Empty(t, comments)

	_, err = feedback.SaveComment(grade, &t2, "needs references", util.FormatPlain)
	require.NoError(t, err)
	_, err = feedback.SaveComment(grade, &t1, "good structure", 0)
	require.NoError(t, err)
	overall, err := feedback.SaveComment(grade, nil, "well done", 0)
	require.NoError(t, err)
	assert.Nil(t, overall.MarkID)
	assert.Equal(t, util.FormatHTML, overall.CommentFormat)

	// 再次保存覆盖同一条
	updated, err := feedback.SaveComment(grade, nil, "well done overall", 0)
	require.NoError(t, err)
	assert.Equal(t, overall.ID, updated.ID)

	comments, err = feedback.GetAllComments(grade.ID)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Nil(t, comments[0].MarkID)
	assert.Equal(t, "well done overall", comments[0].CommentText)

	mine, err := feedback.GetMarkerComment(grade, t1)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, "good structure", mine.CommentText)

	// 评语会创建打分记录，但不填分数
	mark, err := env.svc.GetMark(grade, t2, false)
	require.NoError(t, err)
	require.NotNil(t, mark)
	assert.Nil(t, mark.Value)

	none, err := feedback.GetMarkerComment(grade, env.teachers[2].ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}
