package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qteams/logging"
	"qteams/models"
	"qteams/store"

	"gorm.io/gorm"
)

// TeamService drives teams through their rounds. Every mutation runs under
// a per-team lock inside one transaction and notifies observers only after
// the commit.
type TeamService struct {
	store    *store.Store
	notifier TeamNotifier
	cache    *TeamCache
	locks    *teamLocks
	log      *logging.Logger
}

func NewTeamService(st *store.Store, notifier TeamNotifier, log *logging.Logger) *TeamService {
	if notifier == nil {
		notifier = NewMultiNotifier()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &TeamService{
		store:    st,
		notifier: notifier,
		locks:    newTeamLocks(),
		log:      log,
	}
}

// SetCache makes snapshot reads go through the Redis cache.
func (s *TeamService) SetCache(cache *TeamCache) {
	s.cache = cache
}

type CreateTeamRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	TopicID uint   `json:"topic_id" binding:"required"`
}

type SubmitQuestionRequest struct {
	Question    string `json:"question" binding:"required"`
	ModelAnswer string `json:"model_answer" binding:"required"`
}

type SubmitAnswerRequest struct {
	// QuestionID is optional; when set it must be the current question.
	QuestionID uint   `json:"question_id"`
	Answer     string `json:"answer" binding:"required"`
}

type ScoreAnswerRequest struct {
	Score *uint `json:"score" binding:"required"`
}

type MemberRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

type SetModeRequest struct {
	Mode models.Mode `json:"mode" binding:"required"`
}

type outcome int

const (
	teamUnchanged outcome = iota
	teamChanged
	teamDeleted
)

type mutation func(tx *store.Store, team *models.Team) (outcome, error)

// mutate loads and row-locks the team, applies fn and persists the team
// when fn reports a change. The returned team is reloaded with its
// relations after the commit; it is nil when fn deleted the team.
func (s *TeamService) mutate(ctx context.Context, teamID uint, op string, fn mutation) (*models.Team, error) {
	unlock := s.locks.Lock(teamID)
	defer unlock()

	log := s.log.WithTeam(teamID).With("op", op)

	var (
		result   outcome
		from, to models.Phase
	)
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		team, err := tx.LockTeam(teamID)
		if err != nil {
			return normalize(err, "team", "")
		}
		from = team.State

		result, err = fn(tx, team)
		if err != nil {
			return err
		}
		to = team.State
		if result == teamChanged {
			if err := tx.SaveTeam(team); err != nil {
				return fmt.Errorf("failed to save team: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Debug("mutation rejected", "error", err)
		return nil, err
	}

	switch result {
	case teamDeleted:
		log.Info("team deleted")
		s.notifier.TeamDeleted(ctx, teamID)
		return nil, nil
	case teamChanged:
		if from != to {
			log.Info("phase changed", "from", from, "to", to)
		}
		s.publish(ctx, teamID)
	}

	team, err := s.store.WithContext(ctx).GetTeam(teamID)
	if err != nil {
		return nil, normalize(err, "team", "")
	}
	return team, nil
}

// publish hands the committed state of a team to the notifier.
func (s *TeamService) publish(ctx context.Context, teamID uint) {
	st := s.store.WithContext(ctx)
	team, err := st.GetTeam(teamID)
	if err != nil {
		s.log.WithTeam(teamID).Warn("failed to load team for notification", "error", err)
		return
	}
	snapshot, err := buildSnapshot(st, team)
	if err != nil {
		s.log.WithTeam(teamID).Warn("failed to build team snapshot", "error", err)
		return
	}
	s.notifier.TeamChanged(ctx, snapshot)
}

// CreateTeam creates a team on topicID with the actor as creator and first member.
func (s *TeamService) CreateTeam(ctx context.Context, actorID uint, req *CreateTeamRequest) (*models.Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ValidationError("team name is required")
	}
	if len(name) > 100 {
		return nil, ValidationError("team name is too long")
	}

	team := models.Team{
		CreatorID: actorID,
		TopicID:   req.TopicID,
		Name:      name,
		State:     models.PhaseOpen,
		Mode:      models.ModeTrain,
	}
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.GetTopic(req.TopicID); err != nil {
			return normalize(err, "topic", "")
		}
		if _, err := tx.GetUser(actorID); err != nil {
			return normalize(err, "user", "")
		}
		if err := tx.CreateTeam(&team); err != nil {
			return normalize(err, "team", "team already exists")
		}
		return tx.AddMembership(&models.Membership{
			UserID:   actorID,
			TeamID:   team.ID,
			JoinedAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithTeam(team.ID).WithUser(actorID).Info("team created", "topic_id", req.TopicID)
	s.publish(ctx, team.ID)

	created, err := s.store.WithContext(ctx).GetTeam(team.ID)
	if err != nil {
		return nil, normalize(err, "team", "")
	}
	return created, nil
}

// AdvancePhase starts a new round from open or done, or closes the scoring
// of the current question. The question and answer phases end on their own
// once every member has submitted.
func (s *TeamService) AdvancePhase(ctx context.Context, teamID, actorID uint) (*models.Team, error) {
	return s.mutate(ctx, teamID, "advance_phase", func(tx *store.Store, team *models.Team) (outcome, error) {
		switch team.State {
		case models.PhaseOpen, models.PhaseDone:
			if !team.IsCreator(actorID) {
				return teamUnchanged, PermissionError("only the team creator can start a round")
			}
			return startRound(tx, team)
		case models.PhaseScoring:
			if team.CurrentQuestionID == nil {
				return teamUnchanged, PhaseError("there is no question being scored")
			}
			current, err := tx.GetQuestion(*team.CurrentQuestionID)
			if err != nil {
				return teamUnchanged, normalize(err, "question", "")
			}
			if current.AuthorID != actorID {
				return teamUnchanged, PermissionError("only the author of the current question can finish scoring")
			}
			return finishScoring(tx, team)
		case models.PhaseArchived:
			return teamUnchanged, PhaseError("team is archived")
		default:
			return teamUnchanged, PhaseError(fmt.Sprintf("the %s phase ends when every member has submitted", team.State))
		}
	})
}

// startRound opens a new question phase. With one member or fewer there is
// nobody to play against and the team stays where it is.
func startRound(tx *store.Store, team *models.Team) (outcome, error) {
	members, err := tx.CountMembers(team.ID)
	if err != nil {
		return teamUnchanged, fmt.Errorf("failed to count members: %w", err)
	}
	if members <= 1 {
		return teamUnchanged, nil
	}
	if err := tx.ResetMemberships(team.ID); err != nil {
		return teamUnchanged, fmt.Errorf("failed to reset memberships: %w", err)
	}
	team.Round++
	team.CurrentQuestionID = nil
	team.State = models.PhaseQuestion
	return teamChanged, nil
}

// finishScoring recomputes every member's tally from the round's answers,
// closes the current question and moves on to the next unanswered one.
func finishScoring(tx *store.Store, team *models.Team) (outcome, error) {
	if err := recomputeMemberships(tx, team); err != nil {
		return teamUnchanged, err
	}
	if err := tx.MarkQuestionDone(*team.CurrentQuestionID); err != nil {
		return teamUnchanged, fmt.Errorf("failed to close question: %w", err)
	}

	next, err := tx.NextUnansweredRoundQuestion(team)
	if err != nil {
		return teamUnchanged, fmt.Errorf("failed to find next question: %w", err)
	}
	if next != nil {
		team.CurrentQuestionID = &next.ID
		team.State = models.PhaseAnswer
	} else {
		team.CurrentQuestionID = nil
		team.State = models.PhaseDone
	}
	return teamChanged, nil
}

func recomputeMemberships(tx *store.Store, team *models.Team) error {
	answers, err := tx.RoundAnswers(team)
	if err != nil {
		return fmt.Errorf("failed to load round answers: %w", err)
	}
	tallies := TallyAnswers(answers)

	memberships, err := tx.Memberships(team.ID)
	if err != nil {
		return fmt.Errorf("failed to load memberships: %w", err)
	}
	for i := range memberships {
		m := &memberships[i]
		applyTally(m, tallies[m.UserID])
		if err := tx.SaveMembershipCounts(m); err != nil {
			return fmt.Errorf("failed to save membership: %w", err)
		}
	}
	return nil
}

// SubmitQuestion adds the actor's question to the round. When every member
// has submitted, the round's first question becomes current.
func (s *TeamService) SubmitQuestion(ctx context.Context, teamID, actorID uint, req *SubmitQuestionRequest) (*models.Team, error) {
	text, modelAnswer := strings.TrimSpace(req.Question), strings.TrimSpace(req.ModelAnswer)
	if text == "" || modelAnswer == "" {
		return nil, ValidationError("question and model answer are required")
	}

	return s.mutate(ctx, teamID, "submit_question", func(tx *store.Store, team *models.Team) (outcome, error) {
		if team.State != models.PhaseQuestion {
			return teamUnchanged, PhaseError("questions can only be submitted in the question phase")
		}
		if err := requireMember(tx, team, actorID); err != nil {
			return teamUnchanged, err
		}
		existing, err := tx.UserRoundQuestion(team, actorID)
		if err != nil {
			return teamUnchanged, fmt.Errorf("failed to look up question: %w", err)
		}
		if existing != nil {
			return teamUnchanged, ValidationError("you already submitted a question for this round")
		}

		teamRef := team.ID
		question := models.Question{
			TeamID:      &teamRef,
			Round:       team.Round,
			AuthorID:    actorID,
			TopicID:     team.TopicID,
			Text:        text,
			ModelAnswer: modelAnswer,
		}
		if err := tx.CreateQuestion(&question); err != nil {
			return teamUnchanged, normalize(err, "question", "you already submitted a question for this round")
		}

		submitted, err := tx.CountRoundQuestions(team)
		if err != nil {
			return teamUnchanged, fmt.Errorf("failed to count questions: %w", err)
		}
		members, err := tx.CountMembers(team.ID)
		if err != nil {
			return teamUnchanged, fmt.Errorf("failed to count members: %w", err)
		}
		if submitted >= members {
			first, err := tx.FirstRoundQuestion(team)
			if err != nil {
				return teamUnchanged, fmt.Errorf("failed to load first question: %w", err)
			}
			team.CurrentQuestionID = &first.ID
			team.State = models.PhaseAnswer
		}
		return teamChanged, nil
	})
}

// UpdateQuestion lets the author edit a question that is not yet in play.
func (s *TeamService) UpdateQuestion(ctx context.Context, questionID, actorID uint, req *SubmitQuestionRequest) (*models.Question, error) {
	text, modelAnswer := strings.TrimSpace(req.Question), strings.TrimSpace(req.ModelAnswer)
	if text == "" || modelAnswer == "" {
		return nil, ValidationError("question and model answer are required")
	}

	question, err := s.store.WithContext(ctx).GetQuestion(questionID)
	if err != nil {
		return nil, normalize(err, "question", "")
	}
	if question.AuthorID != actorID {
		return nil, PermissionError("only the author can edit a question")
	}

	edit := func(tx *store.Store, team *models.Team) error {
		q, err := tx.GetQuestion(questionID)
		if err != nil {
			return normalize(err, "question", "")
		}
		if err := questionEditable(team, q); err != nil {
			return err
		}
		q.Text, q.ModelAnswer = text, modelAnswer
		if err := tx.UpdateQuestionText(q); err != nil {
			return fmt.Errorf("failed to update question: %w", err)
		}
		question = q
		return nil
	}

	teamID, err := owningTeam(s.store.WithContext(ctx), questionID)
	if err != nil {
		return nil, err
	}
	if teamID == 0 {
		err = s.store.Transaction(ctx, func(tx *store.Store) error { return edit(tx, nil) })
	} else {
		_, err = s.mutate(ctx, teamID, "update_question", func(tx *store.Store, team *models.Team) (outcome, error) {
			return teamUnchanged, edit(tx, team)
		})
	}
	if err != nil {
		return nil, err
	}
	return question, nil
}

// RemoveQuestion deletes the author's question and its answers.
func (s *TeamService) RemoveQuestion(ctx context.Context, questionID, actorID uint) error {
	question, err := s.store.WithContext(ctx).GetQuestion(questionID)
	if err != nil {
		return normalize(err, "question", "")
	}
	if question.AuthorID != actorID {
		return PermissionError("only the author can remove a question")
	}

	teamID, err := owningTeam(s.store.WithContext(ctx), questionID)
	if err != nil {
		return err
	}
	if teamID == 0 {
		return s.store.Transaction(ctx, func(tx *store.Store) error {
			return tx.DeleteQuestion(questionID)
		})
	}
	_, err = s.mutate(ctx, teamID, "remove_question", func(tx *store.Store, team *models.Team) (outcome, error) {
		q, err := tx.GetQuestion(questionID)
		if err != nil {
			return teamUnchanged, normalize(err, "question", "")
		}
		if err := questionEditable(team, q); err != nil {
			return teamUnchanged, err
		}
		if err := tx.DeleteQuestion(questionID); err != nil {
			return teamUnchanged, fmt.Errorf("failed to delete question: %w", err)
		}
		if q.InRound(team) {
			return teamChanged, nil
		}
		return teamUnchanged, nil
	})
	return err
}

// owningTeam returns the team a question was asked in, or 0 when that team
// has been deleted.
func owningTeam(st *store.Store, questionID uint) (uint, error) {
	teams, err := st.TeamsForQuestion(questionID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up question team: %w", err)
	}
	if len(teams) == 0 {
		return 0, nil
	}
	return teams[0].ID, nil
}

// questionEditable rejects edits of questions that are scored or already
// being played. team is nil for questions without a team.
func questionEditable(team *models.Team, q *models.Question) error {
	if q.Done {
		return PhaseError("a scored question can no longer be changed")
	}
	if team != nil && q.InRound(team) && team.State != models.PhaseQuestion {
		return PhaseError("the question is already in play")
	}
	return nil
}

// SubmitAnswer records the actor's answer to the current question. Once
// every member except the author has answered, the team moves to scoring.
func (s *TeamService) SubmitAnswer(ctx context.Context, teamID, actorID uint, req *SubmitAnswerRequest) (*models.Team, error) {
	text := strings.TrimSpace(req.Answer)
	if text == "" {
		return nil, ValidationError("answer is required")
	}

	return s.mutate(ctx, teamID, "submit_answer", func(tx *store.Store, team *models.Team) (outcome, error) {
		if team.State != models.PhaseAnswer || team.CurrentQuestionID == nil {
			return teamUnchanged, PhaseError("answers can only be submitted in the answer phase")
		}
		if err := requireMember(tx, team, actorID); err != nil {
			return teamUnchanged, err
		}
		if req.QuestionID != 0 && !team.IsCurrentQuestion(req.QuestionID) {
			return teamUnchanged, ValidationError("only the current question can be answered")
		}

		current, err := tx.GetQuestion(*team.CurrentQuestionID)
		if err != nil {
			return teamUnchanged, normalize(err, "question", "")
		}
		if current.AuthorID == actorID {
			return teamUnchanged, ValidationError("you cannot answer your own question")
		}
		answered, err := tx.HasAnswered(current.ID, actorID)
		if err != nil {
			return teamUnchanged, fmt.Errorf("failed to look up answer: %w", err)
		}
		if answered {
			return teamUnchanged, ValidationError("you already answered this question")
		}

		answer := models.Answer{
			AuthorID:   actorID,
			QuestionID: current.ID,
			Text:       text,
		}
		if err := tx.CreateAnswer(&answer); err != nil {
			return teamUnchanged, normalize(err, "answer", "you already answered this question")
		}

		answers, err := tx.CountAnswers(current.ID)
		if err != nil {
			return teamUnchanged, fmt.Errorf("failed to count answers: %w", err)
		}
		members, err := tx.CountMembers(team.ID)
		if err != nil {
			return teamUnchanged, fmt.Errorf("failed to count members: %w", err)
		}
		if answers >= members-1 {
			team.State = models.PhaseScoring
		}
		return teamChanged, nil
	})
}

// ScoreAnswer lets the author of the current question score an answer
// while the team is scoring it.
func (s *TeamService) ScoreAnswer(ctx context.Context, answerID, actorID uint, score uint) (*models.Answer, error) {
	st := s.store.WithContext(ctx)
	answer, err := st.GetAnswer(answerID)
	if err != nil {
		return nil, normalize(err, "answer", "")
	}
	question, err := st.GetQuestion(answer.QuestionID)
	if err != nil {
		return nil, normalize(err, "question", "")
	}
	if question.AuthorID != actorID {
		return nil, PermissionError("only the author of the question can score its answers")
	}
	if _, ok := models.ParseScore(score); !ok {
		return nil, ValidationError("score must be 0, 1 or 3")
	}
	if question.TeamID == nil {
		return nil, PhaseError("the question is not part of a team round")
	}

	_, err = s.mutate(ctx, *question.TeamID, "score_answer", func(tx *store.Store, team *models.Team) (outcome, error) {
		if team.State != models.PhaseScoring || !team.IsCurrentQuestion(question.ID) {
			return teamUnchanged, PhaseError("answers can only be scored while their question is being scored")
		}
		if err := tx.SetAnswerScore(answerID, score); err != nil {
			return teamUnchanged, fmt.Errorf("failed to score answer: %w", err)
		}
		return teamChanged, nil
	})
	if err != nil {
		return nil, err
	}

	answer, err = st.GetAnswer(answerID)
	if err != nil {
		return nil, normalize(err, "answer", "")
	}
	return answer, nil
}

// AddMember adds userID to the team. The creator can add anyone, other
// users can only add themselves.
func (s *TeamService) AddMember(ctx context.Context, teamID, actorID, userID uint) (*models.Team, error) {
	return s.mutate(ctx, teamID, "add_member", func(tx *store.Store, team *models.Team) (outcome, error) {
		if !team.IsCreator(actorID) && actorID != userID {
			return teamUnchanged, PermissionError("only the team creator can add other members")
		}
		if !team.State.Idle() {
			return teamUnchanged, PhaseError("members can only change while the team is open or done")
		}
		if _, err := tx.GetUser(userID); err != nil {
			return teamUnchanged, normalize(err, "user", "")
		}
		member, err := tx.IsMember(team.ID, userID)
		if err != nil {
			return teamUnchanged, fmt.Errorf("failed to look up membership: %w", err)
		}
		if member {
			return teamUnchanged, ValidationError("user is already a member")
		}
		if err := tx.AddMembership(&models.Membership{
			UserID:   userID,
			TeamID:   team.ID,
			JoinedAt: time.Now(),
		}); err != nil {
			return teamUnchanged, normalize(err, "membership", "user is already a member")
		}
		return teamChanged, nil
	})
}

// RemoveMember removes userID from the team. The creator can remove anyone,
// other members only themselves. The creator leaves last, which deletes the
// team; in that case the returned team is nil.
func (s *TeamService) RemoveMember(ctx context.Context, teamID, actorID, userID uint) (*models.Team, error) {
	return s.mutate(ctx, teamID, "remove_member", func(tx *store.Store, team *models.Team) (outcome, error) {
		if !team.IsCreator(actorID) && actorID != userID {
			return teamUnchanged, PermissionError("only the team creator can remove other members")
		}
		if !team.State.Idle() {
			return teamUnchanged, PhaseError("members can only change while the team is open or done")
		}
		member, err := tx.IsMember(team.ID, userID)
		if err != nil {
			return teamUnchanged, fmt.Errorf("failed to look up membership: %w", err)
		}
		if !member {
			return teamUnchanged, NotFoundError("membership")
		}

		if team.IsCreator(userID) {
			members, err := tx.CountMembers(team.ID)
			if err != nil {
				return teamUnchanged, fmt.Errorf("failed to count members: %w", err)
			}
			if members > 1 {
				return teamUnchanged, PermissionError("the creator can only leave after removing every other member")
			}
			if err := tx.DeleteTeam(team.ID); err != nil {
				return teamUnchanged, fmt.Errorf("failed to delete team: %w", err)
			}
			return teamDeleted, nil
		}

		if _, err := tx.RemoveMembership(team.ID, userID); err != nil {
			return teamUnchanged, fmt.Errorf("failed to remove membership: %w", err)
		}
		return teamChanged, nil
	})
}

// SetMode switches between training and competition between rounds.
func (s *TeamService) SetMode(ctx context.Context, teamID, actorID uint, mode models.Mode) (*models.Team, error) {
	if !mode.Valid() {
		return nil, ValidationError(fmt.Sprintf("unknown mode %q", mode))
	}
	return s.mutate(ctx, teamID, "set_mode", func(tx *store.Store, team *models.Team) (outcome, error) {
		if !team.IsCreator(actorID) {
			return teamUnchanged, PermissionError("only the team creator can change the mode")
		}
		if !team.State.Idle() {
			return teamUnchanged, PhaseError("the mode can only change while the team is open or done")
		}
		if team.Mode == mode {
			return teamUnchanged, nil
		}
		team.Mode = mode
		return teamChanged, nil
	})
}

// ArchiveTeam moves an idle team to the terminal archived phase.
func (s *TeamService) ArchiveTeam(ctx context.Context, teamID, actorID uint) (*models.Team, error) {
	return s.mutate(ctx, teamID, "archive_team", func(tx *store.Store, team *models.Team) (outcome, error) {
		if !team.IsCreator(actorID) {
			return teamUnchanged, PermissionError("only the team creator can archive the team")
		}
		if !team.State.Idle() {
			return teamUnchanged, PhaseError("only an open or finished team can be archived")
		}
		team.CurrentQuestionID = nil
		team.State = models.PhaseArchived
		return teamChanged, nil
	})
}

func requireMember(tx *store.Store, team *models.Team, userID uint) error {
	member, err := tx.IsMember(team.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to look up membership: %w", err)
	}
	if !member {
		return PermissionError("you are not a member of this team")
	}
	return nil
}

// Queries. These take no lock.

func (s *TeamService) GetTeam(ctx context.Context, teamID uint) (*models.Team, error) {
	team, err := s.store.WithContext(ctx).GetTeam(teamID)
	if err != nil {
		return nil, normalize(err, "team", "")
	}
	return team, nil
}

func (s *TeamService) ListTeams(ctx context.Context, name string) ([]models.Team, error) {
	teams, err := s.store.WithContext(ctx).ListTeams(store.TeamFilter{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

func (s *TeamService) TeamsForUser(ctx context.Context, userID uint) ([]models.Team, error) {
	teams, err := s.store.WithContext(ctx).TeamsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

// UserDone reports whether userID has nothing left to do in the team's
// current phase.
func (s *TeamService) UserDone(ctx context.Context, teamID, userID uint) (bool, error) {
	st := s.store.WithContext(ctx)
	team, err := st.GetTeam(teamID)
	if err != nil {
		return false, normalize(err, "team", "")
	}
	return computeUserDone(st, team, userID)
}

func computeUserDone(st *store.Store, team *models.Team, userID uint) (bool, error) {
	switch team.State {
	case models.PhaseQuestion:
		q, err := st.UserRoundQuestion(team, userID)
		if err != nil {
			return false, err
		}
		return userDone(team.State, q != nil, false, false, false), nil
	case models.PhaseAnswer:
		if team.CurrentQuestionID == nil {
			return false, nil
		}
		current, err := st.GetQuestion(*team.CurrentQuestionID)
		if err != nil {
			return false, normalize(err, "question", "")
		}
		answered, err := st.HasAnswered(current.ID, userID)
		if err != nil {
			return false, err
		}
		return userDone(team.State, false, true, current.AuthorID == userID, answered), nil
	default:
		return false, nil
	}
}

// Progress returns the number of the question being played and the number
// of questions in the round.
func (s *TeamService) Progress(ctx context.Context, teamID uint) (number, count int, err error) {
	st := s.store.WithContext(ctx)
	team, err := st.GetTeam(teamID)
	if err != nil {
		return 0, 0, normalize(err, "team", "")
	}
	return progress(st, team)
}

func progress(st *store.Store, team *models.Team) (number, count int, err error) {
	done, err := st.CountDoneRoundQuestions(team)
	if err != nil {
		return 0, 0, err
	}
	count, err = st.CountRoundQuestions(team)
	if err != nil {
		return 0, 0, err
	}
	return done + 1, count, nil
}

// Snapshot returns the viewer independent state of a team, from the cache
// when one is configured. A miss is built from the database but not
// cached: only the post-commit TeamChanged write fills the cache, so a slow
// reader never overwrites a newer snapshot.
func (s *TeamService) Snapshot(ctx context.Context, teamID uint) (*TeamSnapshot, error) {
	if s.cache != nil {
		if snapshot, ok := s.cache.Get(ctx, teamID); ok {
			return snapshot, nil
		}
	}

	st := s.store.WithContext(ctx)
	team, err := st.GetTeam(teamID)
	if err != nil {
		return nil, normalize(err, "team", "")
	}
	snapshot, err := buildSnapshot(st, team)
	if err != nil {
		return nil, fmt.Errorf("failed to build team snapshot: %w", err)
	}
	return snapshot, nil
}

// State returns the team as seen by viewerID, who must be a member. The
// shared part comes from Snapshot; only the viewer's own rows are read from
// the database.
func (s *TeamService) State(ctx context.Context, teamID, viewerID uint) (*TeamState, error) {
	snapshot, err := s.Snapshot(ctx, teamID)
	if err != nil {
		return nil, err
	}
	member, ok := snapshot.Member(viewerID)
	if !ok {
		return nil, PermissionError("you are not a member of this team")
	}

	st := s.store.WithContext(ctx)
	state := &TeamState{TeamSnapshot: snapshot, UserDone: member.Done}
	if snapshot.State != models.PhaseOpen && snapshot.State != models.PhaseArchived {
		round := &models.Team{ID: snapshot.TeamID, Round: snapshot.Round}
		if state.UserQuestion, err = st.UserRoundQuestion(round, viewerID); err != nil {
			return nil, fmt.Errorf("failed to load user question: %w", err)
		}
	}

	if snapshot.CurrentQuestionID == nil {
		return state, nil
	}
	current, err := st.GetQuestion(*snapshot.CurrentQuestionID)
	if err != nil {
		return nil, normalize(err, "question", "")
	}
	if current.AuthorID == viewerID || snapshot.State == models.PhaseScoring {
		state.ModelAnswer = current.ModelAnswer
		answers, err := st.AnswersByQuestion(current.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load answers: %w", err)
		}
		for _, a := range answers {
			state.Answers = append(state.Answers, AnswerView{
				ID:       a.ID,
				AuthorID: a.AuthorID,
				Username: a.Author.Username,
				Answer:   a.Text,
				Score:    a.Score,
			})
		}
	}
	return state, nil
}

// UserQuestion returns the actor's question of the active round, if any.
func (s *TeamService) UserQuestion(ctx context.Context, teamID, userID uint) (*models.Question, error) {
	st := s.store.WithContext(ctx)
	team, err := st.GetTeam(teamID)
	if err != nil {
		return nil, normalize(err, "team", "")
	}
	q, err := st.UserRoundQuestion(team, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question: %w", err)
	}
	if q == nil {
		return nil, NotFoundError("question")
	}
	return q, nil
}

func buildSnapshot(st *store.Store, team *models.Team) (*TeamSnapshot, error) {
	number, count, err := progress(st, team)
	if err != nil {
		return nil, err
	}

	memberships := team.Memberships
	if memberships == nil {
		if memberships, err = st.Memberships(team.ID); err != nil {
			return nil, err
		}
	}

	questions, err := st.RoundQuestions(team)
	if err != nil {
		return nil, err
	}
	authors := make(map[uint]bool, len(questions))
	for _, q := range questions {
		authors[q.AuthorID] = true
	}

	snapshot := &TeamSnapshot{
		TeamID:            team.ID,
		Name:              team.Name,
		TopicID:           team.TopicID,
		CreatorID:         team.CreatorID,
		State:             team.State,
		Mode:              team.Mode,
		Round:             team.Round,
		CurrentQuestionID: team.CurrentQuestionID,
		QuestionNumber:    number,
		QuestionCount:     count,
		UpdatedAt:         team.UpdatedAt,
	}

	var current *models.Question
	answered := map[uint]bool{}
	if team.CurrentQuestionID != nil {
		current, err = st.GetQuestion(*team.CurrentQuestionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if current != nil {
		answers, err := st.AnswersByQuestion(current.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range answers {
			answered[a.AuthorID] = true
		}
		snapshot.CurrentQuestion = &QuestionPrompt{
			ID:          current.ID,
			AuthorID:    current.AuthorID,
			Question:    current.Text,
			AnswerCount: len(answers),
		}
	}

	for _, m := range memberships {
		isAuthor := current != nil && current.AuthorID == m.UserID
		done := userDone(team.State, authors[m.UserID], current != nil, isAuthor, answered[m.UserID])
		if done {
			snapshot.MembersDone++
		}
		snapshot.Members = append(snapshot.Members, MemberScore{
			UserID:   m.UserID,
			Username: m.User.Username,
			Right:    m.Right,
			Partial:  m.Partial,
			Wrong:    m.Wrong,
			Score:    m.Score(),
			Done:     done,
		})
	}
	return snapshot, nil
}
