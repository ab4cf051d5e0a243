package services

import (
	"context"
	"sync"
	"testing"

	"qteams/logging"
	"qteams/models"
	"qteams/store"
	"qteams/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changed []*TeamSnapshot
	deleted []uint
}

func (r *recordingNotifier) TeamChanged(_ context.Context, s *TeamSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, s)
}

func (r *recordingNotifier) TeamDeleted(_ context.Context, teamID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, teamID)
}

func (r *recordingNotifier) last() *TeamSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changed) == 0 {
		return nil
	}
	return r.changed[len(r.changed)-1]
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changed)
}

type fixture struct {
	db       *gorm.DB
	svc      *TeamService
	notifier *recordingNotifier
	topic    *models.Topic
	users    []*models.User
	team     *models.Team
}

// newFixture builds a team of n members; users[0] is the creator.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	notifier := &recordingNotifier{}
	f := &fixture{
		db:       db,
		svc:      NewTeamService(store.New(db), notifier, logging.Nop()),
		notifier: notifier,
		topic:    testutil.CreateTopic(t, db, "1", "History"),
		users:    testutil.CreateUsers(t, db, n),
	}
	f.team = testutil.CreateTeam(t, db, f.topic, "alpha", f.users...)
	return f
}

func (f *fixture) id(i int) uint { return f.users[i].ID }

func (f *fixture) advance(t *testing.T, actor int) *models.Team {
	t.Helper()
	team, err := f.svc.AdvancePhase(context.Background(), f.team.ID, f.id(actor))
	require.NoError(t, err)
	return team
}

func (f *fixture) ask(t *testing.T, actor int) *models.Team {
	t.Helper()
	team, err := f.svc.SubmitQuestion(context.Background(), f.team.ID, f.id(actor), &SubmitQuestionRequest{
		Question:    "question of " + f.users[actor].Username,
		ModelAnswer: "model answer",
	})
	require.NoError(t, err)
	return team
}

func (f *fixture) answer(t *testing.T, actor int) *models.Team {
	t.Helper()
	team, err := f.svc.SubmitAnswer(context.Background(), f.team.ID, f.id(actor), &SubmitAnswerRequest{
		Answer: "answer of " + f.users[actor].Username,
	})
	require.NoError(t, err)
	return team
}

func (f *fixture) answerOf(t *testing.T, questionID uint, actor int) *models.Answer {
	t.Helper()
	answers, err := store.New(f.db).AnswersByQuestion(questionID)
	require.NoError(t, err)
	for i := range answers {
		if answers[i].AuthorID == f.id(actor) {
			return &answers[i]
		}
	}
	t.Fatalf("no answer by %s", f.users[actor].Username)
	return nil
}

func (f *fixture) membership(t *testing.T, i int) *models.Membership {
	t.Helper()
	m, err := store.New(f.db).Membership(f.team.ID, f.id(i))
	require.NoError(t, err)
	return m
}

func (f *fixture) question(t *testing.T, id uint) *models.Question {
	t.Helper()
	q, err := store.New(f.db).GetQuestion(id)
	require.NoError(t, err)
	return q
}

func TestAdvancePhase_SingleMemberIsNoop(t *testing.T) {
	f := newFixture(t, 1)

	team := f.advance(t, 0)
	assert.Equal(t, models.PhaseOpen, team.State)
	assert.Equal(t, uint(0), team.Round)
	assert.Zero(t, f.notifier.count(), "a no-op advance is not a change")
}

func TestAdvancePhase_StartsRound(t *testing.T) {
	f := newFixture(t, 2)
	m := f.membership(t, 1)
	m.Right, m.Wrong = 3, 2
	require.NoError(t, store.New(f.db).SaveMembershipCounts(m))

	_, err := f.svc.AdvancePhase(context.Background(), f.team.ID, f.id(1))
	assert.True(t, IsPermission(err), "got %v", err)

	team := f.advance(t, 0)
	assert.Equal(t, models.PhaseQuestion, team.State)
	assert.Equal(t, uint(1), team.Round)
	assert.Nil(t, team.CurrentQuestionID)
	assert.Zero(t, f.membership(t, 1).Score(), "tallies reset for the new round")

	require.NotNil(t, f.notifier.last())
	assert.Equal(t, models.PhaseQuestion, f.notifier.last().State)

	_, err = f.svc.AdvancePhase(context.Background(), f.team.ID, f.id(0))
	assert.True(t, IsPhase(err), "question phase ends on submissions, got %v", err)
}

func TestAdvancePhase_NotFound(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.AdvancePhase(context.Background(), 9999, f.id(0))
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestSubmitQuestion_CompletesInSubmissionOrder(t *testing.T) {
	f := newFixture(t, 3)
	f.advance(t, 0)

	team := f.ask(t, 2)
	assert.Equal(t, models.PhaseQuestion, team.State)
	team = f.ask(t, 0)
	assert.Equal(t, models.PhaseQuestion, team.State)
	team = f.ask(t, 1)

	assert.Equal(t, models.PhaseAnswer, team.State)
	require.NotNil(t, team.CurrentQuestionID)
	assert.Equal(t, f.id(2), f.question(t, *team.CurrentQuestionID).AuthorID, "first submitted question comes first")
}

func TestSubmitQuestion_Rejections(t *testing.T) {
	f := newFixture(t, 3)
	outsider := testutil.CreateUser(t, f.db, "outsider")
	ctx := context.Background()
	req := &SubmitQuestionRequest{Question: "q", ModelAnswer: "a"}

	_, err := f.svc.SubmitQuestion(ctx, f.team.ID, f.id(0), req)
	assert.True(t, IsPhase(err), "open team takes no questions, got %v", err)

	f.advance(t, 0)

	_, err = f.svc.SubmitQuestion(ctx, f.team.ID, outsider.ID, req)
	assert.True(t, IsPermission(err), "got %v", err)

	_, err = f.svc.SubmitQuestion(ctx, f.team.ID, f.id(0), &SubmitQuestionRequest{Question: " ", ModelAnswer: "a"})
	assert.True(t, IsValidation(err), "got %v", err)

	f.ask(t, 0)
	changes := f.notifier.count()
	_, err = f.svc.SubmitQuestion(ctx, f.team.ID, f.id(0), req)
	assert.True(t, IsValidation(err), "second question in a round, got %v", err)
	assert.Equal(t, changes, f.notifier.count(), "rejected mutations are not announced")

	n, err := store.New(f.db).CountRoundQuestions(&models.Team{ID: f.team.ID, Round: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmitAnswer_GatesScoring(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.advance(t, 0)
	f.ask(t, 0)
	f.ask(t, 1)
	team := f.ask(t, 2)
	current := *team.CurrentQuestionID
	require.Equal(t, f.id(0), f.question(t, current).AuthorID)

	_, err := f.svc.SubmitAnswer(ctx, f.team.ID, f.id(0), &SubmitAnswerRequest{Answer: "mine"})
	assert.True(t, IsValidation(err), "authors cannot answer their own question, got %v", err)

	_, err = f.svc.SubmitAnswer(ctx, f.team.ID, f.id(1), &SubmitAnswerRequest{QuestionID: current + 1000, Answer: "x"})
	assert.True(t, IsValidation(err), "only the current question, got %v", err)

	team = f.answer(t, 1)
	assert.Equal(t, models.PhaseAnswer, team.State, "not every member has answered")

	_, err = f.svc.SubmitAnswer(ctx, f.team.ID, f.id(1), &SubmitAnswerRequest{Answer: "again"})
	assert.True(t, IsValidation(err), "got %v", err)

	team = f.answer(t, 2)
	assert.Equal(t, models.PhaseScoring, team.State)
	assert.Equal(t, current, *team.CurrentQuestionID)

	_, err = f.svc.SubmitAnswer(ctx, f.team.ID, f.id(1), &SubmitAnswerRequest{Answer: "late"})
	assert.True(t, IsPhase(err), "got %v", err)
}

func TestScoreAnswer(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.advance(t, 0)
	f.ask(t, 0)
	f.ask(t, 1)
	team := f.ask(t, 2)
	current := *team.CurrentQuestionID
	f.answer(t, 1)

	early := f.answerOf(t, current, 1)
	_, err := f.svc.ScoreAnswer(ctx, early.ID, f.id(0), 3)
	assert.True(t, IsPhase(err), "scoring starts when every answer is in, got %v", err)

	f.answer(t, 2)
	a := f.answerOf(t, current, 1)

	_, err = f.svc.ScoreAnswer(ctx, a.ID, f.id(2), 3)
	assert.True(t, IsPermission(err), "got %v", err)

	_, err = f.svc.ScoreAnswer(ctx, a.ID, f.id(0), 2)
	assert.True(t, IsValidation(err), "got %v", err)

	_, err = f.svc.ScoreAnswer(ctx, 9999, f.id(0), 3)
	assert.True(t, IsNotFound(err), "got %v", err)

	scoredAnswer, err := f.svc.ScoreAnswer(ctx, a.ID, f.id(0), 1)
	require.NoError(t, err)
	require.NotNil(t, scoredAnswer.Score)
	assert.Equal(t, uint(1), *scoredAnswer.Score)
	assert.Equal(t, models.PhaseScoring, f.notifier.last().State, "scoring notifies observers")

	// Rescoring before advancing is allowed.
	scoredAnswer, err = f.svc.ScoreAnswer(ctx, a.ID, f.id(0), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), *scoredAnswer.Score)
}

// Three members play a full round: every question is answered by the two
// other members and scored by its author.
func TestFullRound(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.advance(t, 0)

	f.ask(t, 1)
	f.ask(t, 2)
	team := f.ask(t, 0)
	require.Equal(t, models.PhaseAnswer, team.State)

	number, count, err := f.svc.Progress(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, number)
	assert.Equal(t, 3, count)

	// Question of user2: user1 right, user3 partial.
	q1 := *team.CurrentQuestionID
	assert.Equal(t, f.id(1), f.question(t, q1).AuthorID)
	f.answer(t, 0)
	team = f.answer(t, 2)
	require.Equal(t, models.PhaseScoring, team.State)

	_, err = f.svc.AdvancePhase(ctx, f.team.ID, f.id(0))
	assert.True(t, IsPermission(err), "only the author closes scoring, got %v", err)

	_, err = f.svc.ScoreAnswer(ctx, f.answerOf(t, q1, 0).ID, f.id(1), 3)
	require.NoError(t, err)
	_, err = f.svc.ScoreAnswer(ctx, f.answerOf(t, q1, 2).ID, f.id(1), 1)
	require.NoError(t, err)

	team = f.advance(t, 1)
	assert.Equal(t, models.PhaseAnswer, team.State)
	assert.True(t, f.question(t, q1).Done)
	assert.Equal(t, uint(1), f.membership(t, 0).Right)
	assert.Equal(t, uint(1), f.membership(t, 2).Partial)
	assert.Zero(t, f.membership(t, 1).Score())

	q2 := *team.CurrentQuestionID
	assert.Equal(t, f.id(2), f.question(t, q2).AuthorID)
	number, _, err = f.svc.Progress(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, number)

	// Question of user3: both wrong.
	f.answer(t, 0)
	f.answer(t, 1)
	_, err = f.svc.ScoreAnswer(ctx, f.answerOf(t, q2, 0).ID, f.id(2), 0)
	require.NoError(t, err)
	_, err = f.svc.ScoreAnswer(ctx, f.answerOf(t, q2, 1).ID, f.id(2), 0)
	require.NoError(t, err)
	team = f.advance(t, 2)
	assert.Equal(t, models.PhaseAnswer, team.State)

	m := f.membership(t, 0)
	assert.Equal(t, uint(1), m.Right)
	assert.Equal(t, uint(1), m.Wrong)
	assert.Equal(t, uint(3), m.Score())

	// Question of user1, scored partially: user2 right, user3 left unscored.
	q3 := *team.CurrentQuestionID
	assert.Equal(t, f.id(0), f.question(t, q3).AuthorID)
	f.answer(t, 1)
	f.answer(t, 2)
	_, err = f.svc.ScoreAnswer(ctx, f.answerOf(t, q3, 1).ID, f.id(0), 3)
	require.NoError(t, err)
	team = f.advance(t, 0)

	assert.Equal(t, models.PhaseDone, team.State)
	assert.Nil(t, team.CurrentQuestionID)
	assert.Equal(t, uint(1), f.membership(t, 1).Right)
	assert.Equal(t, uint(1), f.membership(t, 1).Wrong)
	assert.Equal(t, uint(1), f.membership(t, 2).Partial)
	assert.Zero(t, f.membership(t, 2).Wrong, "unscored answers count in no bucket")

	snapshot := f.notifier.last()
	require.NotNil(t, snapshot)
	assert.Equal(t, models.PhaseDone, snapshot.State)
	member, ok := snapshot.Member(f.id(0))
	require.True(t, ok)
	assert.Equal(t, uint(3), member.Score)

	// A new round resets the tallies and starts an empty question set.
	team = f.advance(t, 0)
	assert.Equal(t, models.PhaseQuestion, team.State)
	assert.Equal(t, uint(2), team.Round)
	_, count, err = f.svc.Progress(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, f.membership(t, 0).Score())
	assert.Equal(t, f.id(1), f.question(t, q1).AuthorID, "old questions are kept")
}

func TestRecomputeMemberships_Idempotent(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.advance(t, 0)
	f.ask(t, 0)
	f.ask(t, 1)
	team := f.ask(t, 2)
	q := *team.CurrentQuestionID
	f.answer(t, 1)
	f.answer(t, 2)
	_, err := f.svc.ScoreAnswer(ctx, f.answerOf(t, q, 1).ID, f.id(0), 3)
	require.NoError(t, err)
	_, err = f.svc.ScoreAnswer(ctx, f.answerOf(t, q, 2).ID, f.id(0), 1)
	require.NoError(t, err)

	recompute := func() []models.Membership {
		var memberships []models.Membership
		err := f.svc.store.Transaction(ctx, func(tx *store.Store) error {
			locked, err := tx.LockTeam(f.team.ID)
			if err != nil {
				return err
			}
			if err := recomputeMemberships(tx, locked); err != nil {
				return err
			}
			memberships, err = tx.Memberships(f.team.ID)
			return err
		})
		require.NoError(t, err)
		return memberships
	}

	first := recompute()
	second := recompute()
	require.Len(t, first, 3)
	for i := range first {
		assert.Equal(t, first[i].Right, second[i].Right)
		assert.Equal(t, first[i].Partial, second[i].Partial)
		assert.Equal(t, first[i].Wrong, second[i].Wrong)
	}
	assert.Equal(t, uint(1), f.membership(t, 1).Right)
	assert.Equal(t, uint(1), f.membership(t, 2).Partial)
}

func TestUserDone(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	done := func(i int) bool {
		t.Helper()
		ok, err := f.svc.UserDone(ctx, f.team.ID, f.id(i))
		require.NoError(t, err)
		return ok
	}

	assert.False(t, done(0), "nothing pending while open")

	f.advance(t, 0)
	assert.False(t, done(1))
	f.ask(t, 1)
	assert.True(t, done(1))
	assert.False(t, done(0))

	f.ask(t, 0)
	team := f.ask(t, 2)
	author := f.question(t, *team.CurrentQuestionID).AuthorID
	require.Equal(t, f.id(1), author)

	assert.True(t, done(1), "the author has nothing to answer")
	assert.False(t, done(0))
	f.answer(t, 0)
	assert.True(t, done(0))

	snapshot := f.notifier.last()
	assert.Equal(t, 2, snapshot.MembersDone)

	f.answer(t, 2)
	assert.False(t, done(0), "nothing pending while scoring")
}

func TestState_VisibilityRules(t *testing.T) {
	f := newFixture(t, 3)
	outsider := testutil.CreateUser(t, f.db, "outsider")
	ctx := context.Background()
	f.advance(t, 0)
	f.ask(t, 0)
	f.ask(t, 1)
	team := f.ask(t, 2)
	require.Equal(t, f.id(0), f.question(t, *team.CurrentQuestionID).AuthorID)
	f.answer(t, 1)

	_, err := f.svc.State(ctx, f.team.ID, outsider.ID)
	assert.True(t, IsPermission(err), "got %v", err)

	author, err := f.svc.State(ctx, f.team.ID, f.id(0))
	require.NoError(t, err)
	assert.Equal(t, "model answer", author.ModelAnswer)
	assert.Len(t, author.Answers, 1)
	require.NotNil(t, author.UserQuestion)
	assert.Equal(t, f.id(0), author.UserQuestion.AuthorID)

	player, err := f.svc.State(ctx, f.team.ID, f.id(2))
	require.NoError(t, err)
	assert.Empty(t, player.ModelAnswer, "model answer hidden until scoring")
	assert.Empty(t, player.Answers)
	assert.False(t, player.UserDone)
	require.NotNil(t, player.CurrentQuestion)
	assert.Equal(t, 1, player.CurrentQuestion.AnswerCount)
	assert.Equal(t, 1, player.QuestionNumber)
	assert.Equal(t, 3, player.QuestionCount)

	f.answer(t, 2)
	player, err = f.svc.State(ctx, f.team.ID, f.id(2))
	require.NoError(t, err)
	assert.Equal(t, "model answer", player.ModelAnswer)
	assert.Len(t, player.Answers, 2)
}

func TestMembership_CreatorLeavesLast(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	_, err := f.svc.RemoveMember(ctx, f.team.ID, f.id(0), f.id(0))
	assert.True(t, IsPermission(err), "got %v", err)

	_, err = f.svc.RemoveMember(ctx, f.team.ID, f.id(1), f.id(2))
	assert.True(t, IsPermission(err), "members cannot remove each other, got %v", err)

	team, err := f.svc.RemoveMember(ctx, f.team.ID, f.id(0), f.id(1))
	require.NoError(t, err)
	assert.Len(t, team.Memberships, 2)

	team, err = f.svc.RemoveMember(ctx, f.team.ID, f.id(2), f.id(2))
	require.NoError(t, err)
	assert.Len(t, team.Memberships, 1)

	team, err = f.svc.RemoveMember(ctx, f.team.ID, f.id(0), f.id(0))
	require.NoError(t, err)
	assert.Nil(t, team)
	assert.Equal(t, []uint{f.team.ID}, f.notifier.deleted)

	_, err = f.svc.GetTeam(ctx, f.team.ID)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestMembership_OnlyWhileIdle(t *testing.T) {
	f := newFixture(t, 3)
	newcomer := testutil.CreateUser(t, f.db, "newcomer")
	ctx := context.Background()
	f.advance(t, 0)
	f.ask(t, 0)
	f.ask(t, 1)
	f.ask(t, 2)

	_, err := f.svc.AddMember(ctx, f.team.ID, f.id(0), newcomer.ID)
	assert.True(t, IsPhase(err), "got %v", err)

	_, err = f.svc.RemoveMember(ctx, f.team.ID, f.id(0), f.id(1))
	assert.True(t, IsPhase(err), "got %v", err)
}

func TestAddMember(t *testing.T) {
	f := newFixture(t, 2)
	joiner := testutil.CreateUser(t, f.db, "joiner")
	other := testutil.CreateUser(t, f.db, "other")
	ctx := context.Background()

	_, err := f.svc.AddMember(ctx, f.team.ID, joiner.ID, other.ID)
	assert.True(t, IsPermission(err), "got %v", err)

	team, err := f.svc.AddMember(ctx, f.team.ID, joiner.ID, joiner.ID)
	require.NoError(t, err)
	assert.Len(t, team.Memberships, 3)

	_, err = f.svc.AddMember(ctx, f.team.ID, f.id(0), joiner.ID)
	assert.True(t, IsValidation(err), "got %v", err)

	_, err = f.svc.AddMember(ctx, f.team.ID, f.id(0), 9999)
	assert.True(t, IsNotFound(err), "got %v", err)

	team, err = f.svc.AddMember(ctx, f.team.ID, f.id(0), other.ID)
	require.NoError(t, err)
	assert.Len(t, team.Memberships, 4)
}

func TestSetModeAndArchive(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.SetMode(ctx, f.team.ID, f.id(1), models.ModeCompetition)
	assert.True(t, IsPermission(err), "got %v", err)

	_, err = f.svc.SetMode(ctx, f.team.ID, f.id(0), models.Mode("blitz"))
	assert.True(t, IsValidation(err), "got %v", err)

	team, err := f.svc.SetMode(ctx, f.team.ID, f.id(0), models.ModeCompetition)
	require.NoError(t, err)
	assert.Equal(t, models.ModeCompetition, team.Mode)

	f.advance(t, 0)
	_, err = f.svc.SetMode(ctx, f.team.ID, f.id(0), models.ModeTrain)
	assert.True(t, IsPhase(err), "got %v", err)
	_, err = f.svc.ArchiveTeam(ctx, f.team.ID, f.id(0))
	assert.True(t, IsPhase(err), "got %v", err)

	g := newFixture(t, 2)
	_, err = g.svc.ArchiveTeam(ctx, g.team.ID, g.id(1))
	assert.True(t, IsPermission(err), "got %v", err)
	team, err = g.svc.ArchiveTeam(ctx, g.team.ID, g.id(0))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseArchived, team.State)

	_, err = g.svc.AdvancePhase(ctx, g.team.ID, g.id(0))
	assert.True(t, IsPhase(err), "got %v", err)
	_, err = g.svc.AddMember(ctx, g.team.ID, g.id(0), g.id(1))
	assert.True(t, IsPhase(err), "got %v", err)
}

func TestUpdateAndRemoveQuestion(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.advance(t, 0)
	f.ask(t, 0)

	q, err := f.svc.UserQuestion(ctx, f.team.ID, f.id(0))
	require.NoError(t, err)

	_, err = f.svc.UpdateQuestion(ctx, q.ID, f.id(1), &SubmitQuestionRequest{Question: "x", ModelAnswer: "y"})
	assert.True(t, IsPermission(err), "got %v", err)

	updated, err := f.svc.UpdateQuestion(ctx, q.ID, f.id(0), &SubmitQuestionRequest{Question: "better", ModelAnswer: "y"})
	require.NoError(t, err)
	assert.Equal(t, "better", updated.Text)

	require.ErrorIs(t, f.svc.RemoveQuestion(ctx, q.ID, f.id(1)), ErrPermission)
	require.NoError(t, f.svc.RemoveQuestion(ctx, q.ID, f.id(0)))
	_, err = f.svc.UserQuestion(ctx, f.team.ID, f.id(0))
	assert.True(t, IsNotFound(err), "got %v", err)

	// Once the round is being played its questions are frozen.
	f.ask(t, 0)
	team := f.ask(t, 1)
	require.Equal(t, models.PhaseAnswer, team.State)
	current := *team.CurrentQuestionID
	author := f.question(t, current).AuthorID
	actor := 0
	if author == f.id(1) {
		actor = 1
	}

	_, err = f.svc.UpdateQuestion(ctx, current, f.id(actor), &SubmitQuestionRequest{Question: "x", ModelAnswer: "y"})
	assert.True(t, IsPhase(err), "got %v", err)
	assert.True(t, IsPhase(f.svc.RemoveQuestion(ctx, current, f.id(actor))))
}

func TestQuestionOfDeletedTeam(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	st := store.New(f.db)

	q := models.Question{
		TeamID: &f.team.ID, Round: 1, AuthorID: f.id(0), TopicID: f.topic.ID,
		Text: "kept", ModelAnswer: "a",
	}
	require.NoError(t, st.CreateQuestion(&q))

	team, err := f.svc.RemoveMember(ctx, f.team.ID, f.id(0), f.id(0))
	require.NoError(t, err)
	require.Nil(t, team)
	assert.Nil(t, f.question(t, q.ID).TeamID)

	updated, err := f.svc.UpdateQuestion(ctx, q.ID, f.id(0), &SubmitQuestionRequest{Question: "edited", ModelAnswer: "b"})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Text)

	require.NoError(t, f.svc.RemoveQuestion(ctx, q.ID, f.id(0)))
	_, err = st.GetQuestion(q.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateTeam(t *testing.T) {
	db := testutil.NewDB(t)
	notifier := &recordingNotifier{}
	svc := NewTeamService(store.New(db), notifier, nil)
	user := testutil.CreateUser(t, db, "founder")
	topic := testutil.CreateTopic(t, db, "7", "Music")
	ctx := context.Background()

	_, err := svc.CreateTeam(ctx, user.ID, &CreateTeamRequest{Name: "band", TopicID: 999})
	assert.True(t, IsNotFound(err), "got %v", err)

	_, err = svc.CreateTeam(ctx, user.ID, &CreateTeamRequest{Name: "  ", TopicID: topic.ID})
	assert.True(t, IsValidation(err), "got %v", err)

	team, err := svc.CreateTeam(ctx, user.ID, &CreateTeamRequest{Name: "band", TopicID: topic.ID})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseOpen, team.State)
	assert.Equal(t, models.ModeTrain, team.Mode)
	require.Len(t, team.Memberships, 1)
	assert.Equal(t, user.ID, team.Memberships[0].UserID)
	assert.Equal(t, 1, notifier.count())

	mine, err := svc.TeamsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	all, err := svc.ListTeams(ctx, "BAN")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

// Concurrent answers must not both miss the transition to scoring.
func TestSubmitAnswer_Concurrent(t *testing.T) {
	f := newFixture(t, 5)
	f.advance(t, 0)
	for i := range f.users {
		f.ask(t, i)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 1; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.SubmitAnswer(context.Background(), f.team.ID, f.id(i), &SubmitAnswerRequest{Answer: "a"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	team, err := f.svc.GetTeam(context.Background(), f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseScoring, team.State)
}
