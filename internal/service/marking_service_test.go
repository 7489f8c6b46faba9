package service

import (
	"fmt"
	"sync"
	"testing"

	"marking_backend/internal/grading"
	"marking_backend/internal/model"
	"marking_backend/internal/repository"
	"marking_backend/internal/testutil"
	"marking_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []GradeEvent
}

func (p *recordingPublisher) Publish(event GradeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(eventType string) []GradeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []GradeEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type markingEnv struct {
	db       *gorm.DB
	svc      *MarkingService
	groups   *repository.GroupRepository
	events   *recordingPublisher
	teachers []*model.User
	students []*model.User
}

func newMarkingEnv(t *testing.T) *markingEnv {
	t.Helper()
	db := testutil.OpenDB(t)
	progression, err := grading.NewProgression(grading.DefaultWorkflowStates())
	require.NoError(t, err)

	env := &markingEnv{
		db:     db,
		groups: repository.NewGroupRepository(db),
		events: &recordingPublisher{},
	}
	env.svc = NewMarkingService(
		repository.NewAssignmentRepository(db),
		repository.NewGradeRepository(db),
		repository.NewAllocationRepository(db),
		env.groups,
		repository.NewUserRepository(db),
		progression,
		env.events,
	)
	env.teachers = env.createUsers(t, "teacher", model.Teacher, 3)
	env.students = env.createUsers(t, "student", model.Student, 6)
	return env
}

func (e *markingEnv) createUsers(t *testing.T, prefix string, role model.UserRole, n int) []*model.User {
	t.Helper()
	users := make([]*model.User, 0, n)
	for i := 1; i <= n; i++ {
		u := &model.User{
			Name:  fmt.Sprintf("%s%d", prefix, i),
			Email: fmt.Sprintf("%s%d@example.com", prefix, i),
			Role:  role,
		}
		require.NoError(t, e.db.Create(u).Error)
		users = append(users, u)
	}
	return users
}

func (e *markingEnv) createAssignment(t *testing.T, a model.Assignment) *model.Assignment {
	t.Helper()
	if a.Name == "" {
		a.Name = "essay"
	}
	if a.MaxGrade == 0 {
		a.MaxGrade = 100
	}
	if a.MarkerCount == 0 {
		a.MarkerCount = 2
	}
	if a.MultiMarkMethod == "" {
		a.MultiMarkMethod = string(grading.MethodManual)
	}
	a.MarkingAllocation = true
	require.NoError(t, e.db.Create(&a).Error)
	return &a
}

// mark 以 marker 的身份给学生打分
func (e *markingEnv) mark(t *testing.T, assignmentID, userID, markerID uint, value *float64, state *string) *model.Grade {
	t.Helper()
	grade, err := e.svc.GetUserGrade(assignmentID, userID, true)
	require.NoError(t, err)
	grade.Grader = markerID
	require.NoError(t, e.svc.UpdateMark(grade, value, state))
	return grade
}

func (e *markingEnv) storedGrade(t *testing.T, assignmentID, userID uint) float64 {
	t.Helper()
	grade, err := e.svc.GetUserGrade(assignmentID, userID, false)
	require.NoError(t, err)
	require.NotNil(t, grade)
	return grade.Grade
}

func f(v float64) *float64 { return &v }

func s(v string) *string { return &v }

func TestMarkingService_SetAllocatedMarkers(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{MarkerCount: 2})
	student := env.students[0].ID
	t1, t2, t3 := env.teachers[0].ID, env.teachers[1].ID, env.teachers[2].ID

	markers, err := env.svc.GetAllocatedMarkers(a.ID, student)
	require.NoError(t, err)
	assert.NotNil(t, markers)
	assert.Empty(t, markers)

	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))
	markers, err = env.svc.GetAllocatedMarkers(a.ID, student)
	require.NoError(t, err)
	assert.Equal(t, []uint{t1, t2}, markers)

	// 相同集合再设置一次没有变化
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))
	markers, err = env.svc.GetAllocatedMarkers(a.ID, student)
	require.NoError(t, err)
	assert.Equal(t, []uint{t1, t2}, markers)

	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t2, t1}))
	markers, err = env.svc.GetAllocatedMarkers(a.ID, student)
	require.NoError(t, err)
	assert.Equal(t, []uint{t2, t1}, markers)

	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t3, t3}))
	markers, err = env.svc.GetAllocatedMarkers(a.ID, student)
	require.NoError(t, err)
	assert.Equal(t, []uint{t3}, markers)

	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, nil))
	markers, err = env.svc.GetAllocatedMarkers(a.ID, student)
	require.NoError(t, err)
	assert.Empty(t, markers)
}

func TestMarkingService_SetAllocatedMarkersValidation(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{MarkerCount: 2})
	student := env.students[0].ID
	t1, t2, t3 := env.teachers[0].ID, env.teachers[1].ID, env.teachers[2].ID

	testCases := []struct {
		description  string
		assignmentID uint
		markers      []uint
		expectErr    error
	}{
		{description: "more markers than allowed", assignmentID: a.ID, markers: []uint{t1, t2, t3}, expectErr: util.ErrTooManyMarkers},
		{description: "zero marker id", assignmentID: a.ID, markers: []uint{t1, 0}, expectErr: util.ErrInvalidMarkerAllocation},
		{description: "unknown marker", assignmentID: a.ID, markers: []uint{9999}, expectErr: util.ErrInvalidMarkerAllocation},
		{description: "unknown assignment", assignmentID: 9999, markers: []uint{t1}, expectErr: util.ErrAssignmentNotFound},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			err := env.svc.SetAllocatedMarkers(testCase.assignmentID, student, testCase.markers)
			assert.ErrorIs(t, err, testCase.expectErr)
		})
	}

	markers, err := env.svc.GetAllocatedMarkers(a.ID, student)
	require.NoError(t, err)
	assert.Empty(t, markers, "rejected allocations must not be stored")
}

func TestMarkingService_CalculatedGradeByMethod(t *testing.T) {
	testCases := []struct {
		description string
		method      grading.Method
		rounding    grading.Rounding
		marks       [2]float64
		expect      float64
	}{
		{description: "manual never calculates", method: grading.MethodManual, marks: [2]float64{99, 11}, expect: -1},
		{description: "first allocated marker", method: grading.MethodFirst, marks: [2]float64{11, 99}, expect: 11},
		{description: "maximum", method: grading.MethodMax, marks: [2]float64{11, 99}, expect: 99},
		{description: "average without rounding", method: grading.MethodAverage, rounding: grading.RoundNone, marks: [2]float64{90, 25}, expect: 57.5},
		{description: "average rounded down", method: grading.MethodAverage, rounding: grading.RoundDown, marks: [2]float64{90, 25}, expect: 57},
		{description: "average rounded up", method: grading.MethodAverage, rounding: grading.RoundUp, marks: [2]float64{90, 25}, expect: 58},
		{description: "average rounded naturally", method: grading.MethodAverage, rounding: grading.RoundNatural, marks: [2]float64{90, 25}, expect: 58},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			env := newMarkingEnv(t)
			a := env.createAssignment(t, model.Assignment{
				MultiMarkMethod:   string(testCase.method),
				MultiMarkRounding: string(testCase.rounding),
			})
			student := env.students[1].ID
			t1, t2 := env.teachers[0].ID, env.teachers[1].ID
			require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))

			env.mark(t, a.ID, student, t1, f(testCase.marks[0]), nil)
			env.mark(t, a.ID, student, t2, f(testCase.marks[1]), nil)

			assert.Equal(t, testCase.expect, env.storedGrade(t, a.ID, student))
		})
	}
}

func TestMarkingService_IncompleteMarksLeaveGradeUnset(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{MultiMarkMethod: string(grading.MethodMax)})
	student := env.students[0].ID
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))

	grade := env.mark(t, a.ID, student, t1, f(80), nil)
	assert.Equal(t, float64(-1), env.storedGrade(t, a.ID, student))
	assert.Nil(t, grade.GradedAt)

	// 只改状态不改分数，仍不完整
	env.mark(t, a.ID, student, t2, nil, s(grading.WorkflowInMarking))
	assert.Equal(t, float64(-1), env.storedGrade(t, a.ID, student))

	// 0 分也是有效打分
	grade = env.mark(t, a.ID, student, t2, f(0), nil)
	assert.Equal(t, float64(80), env.storedGrade(t, a.ID, student))
	assert.NotNil(t, grade.GradedAt)
	assert.NotEmpty(t, env.events.ofType(EventGradeUpdated))
}

func TestMarkingService_GetUserGradeUnknownAssignment(t *testing.T) {
	env := newMarkingEnv(t)

	grade, err := env.svc.GetUserGrade(9999, env.students[0].ID, true)
	assert.ErrorIs(t, err, util.ErrAssignmentNotFound)
	assert.Nil(t, grade)

	var count int64
	require.NoError(t, env.db.Model(&model.Grade{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMarkingService_GetMarkDistinguishesMissingFromZero(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{})
	student := env.students[0].ID
	t1 := env.teachers[0].ID

	grade, err := env.svc.GetUserGrade(a.ID, student, true)
	require.NoError(t, err)

	mark, err := env.svc.GetMark(grade, t1, false)
	require.NoError(t, err)
	assert.Nil(t, mark)

	grade.Grader = t1
	require.NoError(t, env.svc.UpdateMark(grade, f(0), nil))

	mark, err = env.svc.GetMark(grade, t1, false)
	require.NoError(t, err)
	require.NotNil(t, mark)
	require.NotNil(t, mark.Value)
	assert.Equal(t, float64(0), *mark.Value)

	again, err := env.svc.GetOrCreateMark(grade, t1)
	require.NoError(t, err)
	assert.Equal(t, mark.ID, again.ID)
}

func TestMarkingService_UpdateMarkKeepsUnsetFields(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{})
	student := env.students[0].ID
	t1 := env.teachers[0].ID

	grade := env.mark(t, a.ID, student, t1, f(42), s(grading.WorkflowInMarking))
	env.mark(t, a.ID, student, t1, nil, s(grading.WorkflowReadyForReview))

	mark, err := env.svc.GetMark(grade, t1, false)
	require.NoError(t, err)
	require.NotNil(t, mark)
	assert.Equal(t, float64(42), *mark.Value)
	assert.Equal(t, grading.WorkflowReadyForReview, *mark.WorkflowState)
}

func TestMarkingService_UpdateMarkErrors(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{})
	grade, err := env.svc.GetUserGrade(a.ID, env.students[0].ID, true)
	require.NoError(t, err)

	err = env.svc.UpdateMark(grade, f(10), nil)
	assert.ErrorIs(t, err, util.ErrNoGrader)

	grade.Grader = env.teachers[0].ID
	err = env.svc.UpdateMark(grade, nil, s("halfmarked"))
	assert.ErrorIs(t, err, util.ErrUnknownWorkflowState)

	for _, value := range []float64{-2, -1, 100.5} {
		err = env.svc.UpdateMark(grade, f(value), nil)
		assert.ErrorIs(t, err, util.ErrInvalidGradeValue, "value %v", value)
	}

	mark, err := env.svc.GetMark(grade, grade.Grader, false)
	require.NoError(t, err)
	assert.Nil(t, mark, "rejected update must not create a mark")
}

func TestMarkingService_CalculatedWorkflowState(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{MarkingWorkflow: true})
	student := env.students[1].ID
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))

	flags, err := env.svc.GetUserFlags(a.ID, student, true)
	require.NoError(t, err)
	assert.Empty(t, flags.WorkflowState)

	steps := []struct {
		marker uint
		value  *float64
		state  string
		expect string
	}{
		{marker: t1, state: grading.WorkflowInMarking, expect: grading.WorkflowInMarking},
		{marker: t1, value: f(90), state: grading.WorkflowReadyForReview, expect: grading.WorkflowInMarking},
		{marker: t2, value: f(70), state: grading.WorkflowReadyForReview, expect: grading.WorkflowReadyForReview},
	}
	for i, step := range steps {
		grade := env.mark(t, a.ID, student, step.marker, step.value, s(step.state))
		state, err := env.svc.CalculateAndSaveOverallWorkflowState(grade)
		require.NoError(t, err)
		assert.Equal(t, step.expect, state, "step %d", i)

		flags, err := env.svc.GetUserFlags(a.ID, student, false)
		require.NoError(t, err)
		require.NotNil(t, flags)
		assert.Equal(t, step.expect, flags.WorkflowState, "step %d", i)
	}
	assert.Len(t, env.events.ofType(EventWorkflowUpdated), 2)
}

func TestMarkingService_WorkflowStateIgnoresUnallocatedMarkers(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{})
	student := env.students[0].ID
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))

	env.mark(t, a.ID, student, t1, nil, s(grading.WorkflowInMarking))
	grade := env.mark(t, a.ID, student, t2, nil, s(grading.WorkflowReleased))

	state, err := env.svc.CalculateAndSaveOverallWorkflowState(grade)
	require.NoError(t, err)
	assert.Equal(t, grading.WorkflowInMarking, state)

	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t2}))
	state, err = env.svc.CalculateAndSaveOverallWorkflowState(grade)
	require.NoError(t, err)
	assert.Equal(t, grading.WorkflowReleased, state)
}

func TestMarkingService_WorkflowStateWithoutAllocation(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{})
	student := env.students[0].ID

	grade := env.mark(t, a.ID, student, env.teachers[0].ID, nil, s(grading.WorkflowReleased))
	state, err := env.svc.CalculateAndSaveOverallWorkflowState(grade)
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestMarkingService_WorkflowStateClearedWhenAllMarkersRemoved(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{})
	student := env.students[0].ID
	t1 := env.teachers[0].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1}))

	grade := env.mark(t, a.ID, student, t1, nil, s(grading.WorkflowReleased))
	state, err := env.svc.CalculateAndSaveOverallWorkflowState(grade)
	require.NoError(t, err)
	require.Equal(t, grading.WorkflowReleased, state)

	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, nil))
	state, err = env.svc.CalculateAndSaveOverallWorkflowState(grade)
	require.NoError(t, err)
	assert.Empty(t, state)

	flags, err := env.svc.GetUserFlags(a.ID, student, false)
	require.NoError(t, err)
	require.NotNil(t, flags)
	assert.Empty(t, flags.WorkflowState)
}

func TestMarkingService_UnallocatedMarkerNotIncludedInMarkCalculations(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{
		MultiMarkMethod:   string(grading.MethodAverage),
		MultiMarkRounding: string(grading.RoundNatural),
	})
	student := env.students[1].ID
	t1, t2, t3 := env.teachers[0].ID, env.teachers[1].ID, env.teachers[2].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))

	env.mark(t, a.ID, student, t1, f(90), nil)
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t3, t2}))
	env.mark(t, a.ID, student, t2, f(10), nil)

	assert.Equal(t, float64(-1), env.storedGrade(t, a.ID, student))
}

func TestMarkingService_ReallocatedMarkerReusesMark(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{
		MultiMarkMethod:   string(grading.MethodAverage),
		MultiMarkRounding: string(grading.RoundNone),
	})
	student := env.students[0].ID
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))

	grade := env.mark(t, a.ID, student, t1, f(40), nil)
	first, err := env.svc.GetMark(grade, t1, false)
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t2}))
	env.mark(t, a.ID, student, t2, f(60), nil)
	assert.Equal(t, float64(60), env.storedGrade(t, a.ID, student))

	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))
	again, err := env.svc.GetMark(grade, t1, false)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, float64(40), *again.Value)

	// 重新分配不会自动重算，需显式计算
	value, err := env.svc.CalculateOverallGrade(grade)
	require.NoError(t, err)
	assert.Equal(t, float64(50), value)
}

func TestMarkingService_AggregationReadsCurrentState(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{MultiMarkMethod: string(grading.MethodMax)})
	student := env.students[0].ID
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))

	grade, err := env.svc.GetUserGrade(a.ID, student, true)
	require.NoError(t, err)

	// 其他请求在此期间修改了分配和打分
	env.mark(t, a.ID, student, t2, f(30), nil)
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1}))

	grade.Grade = 999
	grade.Grader = t1
	require.NoError(t, env.svc.UpdateMark(grade, f(20), nil))
	assert.Equal(t, float64(20), grade.Grade)
	assert.Equal(t, float64(20), env.storedGrade(t, a.ID, student))
}

func TestMarkingService_SaveGradeTeamSubmissionApplyToAll(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{TeamSubmission: true})
	students := env.students
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID

	_, err := env.groups.CreateWithMembers(a.ID, "A", []uint{students[0].ID, students[1].ID, students[2].ID})
	require.NoError(t, err)
	_, err = env.groups.CreateWithMembers(a.ID, "B", []uint{students[3].ID, students[4].ID, students[5].ID})
	require.NoError(t, err)

	for _, st := range students[:3] {
		require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, st.ID, []uint{t1}))
	}
	_, err = env.svc.SaveGrade(a.ID, students[0].ID, t1, SaveGradeReq{Mark: f(50), ApplyToAll: true})
	require.NoError(t, err)

	for _, st := range students[:3] {
		grade, err := env.svc.GetUserGrade(a.ID, st.ID, true)
		require.NoError(t, err)
		mark, err := env.svc.GetMark(grade, t1, false)
		require.NoError(t, err)
		require.NotNil(t, mark, "student %s", st.Name)
		assert.Equal(t, float64(50), *mark.Value)
	}

	// 只分配给 B 组的前两名学生
	for _, st := range students[3:5] {
		require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, st.ID, []uint{t2}))
	}
	_, err = env.svc.SaveGrade(a.ID, students[3].ID, t2, SaveGradeReq{Mark: f(99), ApplyToAll: true})
	require.NoError(t, err)

	for i, st := range students[3:] {
		grade, err := env.svc.GetUserGrade(a.ID, st.ID, true)
		require.NoError(t, err)
		mark, err := env.svc.GetMark(grade, t2, false)
		require.NoError(t, err)
		if i < 2 {
			require.NotNil(t, mark)
			assert.Equal(t, float64(99), *mark.Value)
		} else {
			assert.Nil(t, mark)
		}
	}
}

func TestMarkingService_SaveGradeRejectsOutOfRangeMarks(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{
		MultiMarkMethod:   string(grading.MethodAverage),
		MultiMarkRounding: string(grading.RoundNone),
	})
	student := env.students[0].ID
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1, t2}))

	_, err := env.svc.SaveGrade(a.ID, student, t1, SaveGradeReq{Mark: f(0)})
	require.NoError(t, err)

	testCases := []struct {
		description string
		value       float64
	}{
		{description: "negative mark", value: -2},
		{description: "above max grade", value: a.MaxGrade + 1},
		{description: "far above max grade", value: 500},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			_, err := env.svc.SaveGrade(a.ID, student, t2, SaveGradeReq{Mark: f(testCase.value)})
			assert.ErrorIs(t, err, util.ErrInvalidGradeValue)
			assert.Equal(t, float64(-1), env.storedGrade(t, a.ID, student))
		})
	}

	_, err = env.svc.SaveGrade(a.ID, student, t2, SaveGradeReq{Mark: f(a.MaxGrade)})
	require.NoError(t, err)
	assert.Equal(t, float64(50), env.storedGrade(t, a.ID, student))
}

func TestMarkingService_TeamsAreScopedToAssignment(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{TeamSubmission: true})
	other := env.createAssignment(t, model.Assignment{Name: "project", TeamSubmission: true})
	students := env.students
	t1 := env.teachers[0].ID

	_, err := env.groups.CreateWithMembers(other.ID, "X", []uint{students[0].ID, students[1].ID})
	require.NoError(t, err)
	_, err = env.groups.CreateWithMembers(a.ID, "Y", []uint{students[0].ID, students[2].ID})
	require.NoError(t, err)

	// 同一作业下不能加入第二个小组
	_, err = env.groups.CreateWithMembers(a.ID, "Z", []uint{students[0].ID, students[3].ID})
	assert.Error(t, err)

	for _, st := range students[:4] {
		require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, st.ID, []uint{t1}))
	}
	_, err = env.svc.SaveGrade(a.ID, students[0].ID, t1, SaveGradeReq{Mark: f(77), ApplyToAll: true})
	require.NoError(t, err)

	grade, err := env.svc.GetUserGrade(a.ID, students[2].ID, false)
	require.NoError(t, err)
	require.NotNil(t, grade)
	assert.Equal(t, float64(-1), grade.Grade, "manual method keeps the overall grade unset")
	mark, err := env.svc.GetMark(grade, t1, false)
	require.NoError(t, err)
	require.NotNil(t, mark)
	assert.Equal(t, float64(77), *mark.Value)

	for _, st := range []*model.User{students[1], students[3]} {
		grade, err := env.svc.GetUserGrade(a.ID, st.ID, false)
		require.NoError(t, err)
		assert.Nil(t, grade, "student %s", st.Name)
	}
}

func TestMarkingService_SaveGradeWithoutApplyToAll(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{TeamSubmission: true})
	students := env.students
	t1 := env.teachers[0].ID

	_, err := env.groups.CreateWithMembers(a.ID, "A", []uint{students[0].ID, students[1].ID})
	require.NoError(t, err)
	for _, st := range students[:2] {
		require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, st.ID, []uint{t1}))
	}

	_, err = env.svc.SaveGrade(a.ID, students[0].ID, t1, SaveGradeReq{Mark: f(65)})
	require.NoError(t, err)

	grade, err := env.svc.GetUserGrade(a.ID, students[1].ID, false)
	require.NoError(t, err)
	assert.Nil(t, grade)
}

func TestMarkingService_SaveGradeLockedSubmission(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{})
	student := env.students[0].ID

	flags, err := env.svc.GetUserFlags(a.ID, student, true)
	require.NoError(t, err)
	require.NoError(t, env.db.Model(flags).Update("locked", true).Error)

	_, err = env.svc.SaveGrade(a.ID, student, env.teachers[0].ID, SaveGradeReq{Mark: f(10)})
	assert.ErrorIs(t, err, util.ErrGradeLocked)

	_, err = env.svc.SaveGrade(a.ID, student, 0, SaveGradeReq{Mark: f(10)})
	assert.ErrorIs(t, err, util.ErrNoGrader)
}

func TestMarkingService_SaveGradeUpdatesWorkflowState(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{MarkingWorkflow: true})
	student := env.students[0].ID
	t1 := env.teachers[0].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1}))

	_, err := env.svc.SaveGrade(a.ID, student, t1, SaveGradeReq{
		Mark:          f(70),
		WorkflowState: s(grading.WorkflowReadyForRelease),
	})
	require.NoError(t, err)

	flags, err := env.svc.GetUserFlags(a.ID, student, false)
	require.NoError(t, err)
	require.NotNil(t, flags)
	assert.Equal(t, grading.WorkflowReadyForRelease, flags.WorkflowState)
}

func TestMarkingService_SetManualGrade(t *testing.T) {
	env := newMarkingEnv(t)
	manual := env.createAssignment(t, model.Assignment{})
	first := env.createAssignment(t, model.Assignment{Name: "quiz", MultiMarkMethod: string(grading.MethodFirst)})
	student := env.students[0].ID

	grade, err := env.svc.SetManualGrade(manual.ID, student, 75)
	require.NoError(t, err)
	assert.Equal(t, float64(75), grade.Grade)
	assert.NotNil(t, grade.GradedAt)

	// 手动方式下重新计算不覆盖
	value, err := env.svc.CalculateOverallGrade(grade)
	require.NoError(t, err)
	assert.Equal(t, float64(75), value)
	assert.Equal(t, float64(75), env.storedGrade(t, manual.ID, student))

	_, err = env.svc.SetManualGrade(manual.ID, student, 120)
	assert.ErrorIs(t, err, util.ErrInvalidGradeValue)

	_, err = env.svc.SetManualGrade(first.ID, student, 50)
	assert.ErrorIs(t, err, util.ErrNotManualMethod)

	grade, err = env.svc.SetManualGrade(manual.ID, student, -1)
	require.NoError(t, err)
	assert.Nil(t, grade.GradedAt)
}

func TestMarkingService_MisconfiguredAssignmentKeepsGrade(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{MultiMarkMethod: string(grading.MethodMax)})
	student := env.students[0].ID
	t1 := env.teachers[0].ID
	require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, student, []uint{t1}))
	grade := env.mark(t, a.ID, student, t1, f(33), nil)
	require.Equal(t, float64(33), grade.Grade)

	require.NoError(t, env.db.Model(&model.Assignment{}).Where("id = ?", a.ID).
		Update("multi_mark_method", "median").Error)

	grade.Grader = t1
	require.NoError(t, env.svc.UpdateMark(grade, f(90), nil))
	assert.Equal(t, float64(33), env.storedGrade(t, a.ID, student))
}

func TestMarkingService_RecalculateAssignment(t *testing.T) {
	env := newMarkingEnv(t)
	a := env.createAssignment(t, model.Assignment{MultiMarkMethod: string(grading.MethodFirst)})
	t1, t2 := env.teachers[0].ID, env.teachers[1].ID
	for _, st := range env.students[:3] {
		require.NoError(t, env.svc.SetAllocatedMarkers(a.ID, st.ID, []uint{t1, t2}))
		env.mark(t, a.ID, st.ID, t1, f(10), nil)
		env.mark(t, a.ID, st.ID, t2, f(90), nil)
	}

	require.NoError(t, env.db.Model(&model.Assignment{}).Where("id = ?", a.ID).
		Update("multi_mark_method", string(grading.MethodMax)).Error)

	var calls []int
	require.NoError(t, env.svc.RecalculateAssignment(a.ID, func(done, total int) {
		assert.Equal(t, 3, total)
		calls = append(calls, done)
	}))
	assert.Equal(t, []int{1, 2, 3}, calls)
	for _, st := range env.students[:3] {
		assert.Equal(t, float64(90), env.storedGrade(t, a.ID, st.ID))
	}
}
