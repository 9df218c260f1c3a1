package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/reelhub/review-api/internal/models"
	"github.com/reelhub/review-api/internal/repository"
	"github.com/reelhub/review-api/pkg/jobs"
	"github.com/reelhub/review-api/pkg/storage"
)

// memDB is an in-memory stand-in for the Postgres schema. Transactions are
// serialised and roll back by restoring a snapshot.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex
	seq  int

	submissions map[string]models.Submission
	videos      map[string]models.Video
	feedbacks   map[string]models.Feedback
	assignments map[string]models.Assignment
	users       map[string]models.User
	grades      map[string]int64
	settlements map[string]models.Settlement
	items       map[string]models.SettlementItem
	analysis    map[string]models.AnalysisResult

	failLockPeriod error
	failListItems  error
}

func newMemDB() *memDB {
	return &memDB{
		submissions: map[string]models.Submission{},
		videos:      map[string]models.Video{},
		feedbacks:   map[string]models.Feedback{},
		assignments: map[string]models.Assignment{},
		users:       map[string]models.User{},
		grades:      map[string]int64{},
		settlements: map[string]models.Settlement{},
		items:       map[string]models.SettlementItem{},
		analysis:    map[string]models.AnalysisResult{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() *memDB {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memDB{
		seq:         db.seq,
		submissions: copyMap(db.submissions),
		videos:      copyMap(db.videos),
		feedbacks:   copyMap(db.feedbacks),
		assignments: copyMap(db.assignments),
		users:       copyMap(db.users),
		grades:      copyMap(db.grades),
		settlements: copyMap(db.settlements),
		items:       copyMap(db.items),
		analysis:    copyMap(db.analysis),
	}
}

func (db *memDB) restore(s *memDB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.submissions = s.submissions
	db.videos = s.videos
	db.feedbacks = s.feedbacks
	db.assignments = s.assignments
	db.users = s.users
	db.grades = s.grades
	db.settlements = s.settlements
	db.items = s.items
	db.analysis = s.analysis
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	snap := db.snapshot()
	if err := fn(nil); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

var uniqueViolation = &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}

// seed helpers

func (db *memDB) addWorker(id, name string, baseRate *int64, gradeID *string) {
	db.users[id] = models.User{ID: id, FullName: name, Role: models.RoleWorker, BaseRate: baseRate, GradeID: gradeID, Active: true}
}

func (db *memDB) addAssignment(id string, workerID *string) {
	db.assignments[id] = models.Assignment{ID: id, WorkerID: workerID, Title: "assignment " + id}
}

func (db *memDB) addApproved(id, workerID, title string, customRate *int64, approvedAt time.Time) {
	videoID := "video-" + id
	db.videos[videoID] = models.Video{ID: videoID, ObjectKey: "videos/" + id + ".mp4", Title: title, CustomRate: customRate, Visibility: models.VideoVisibilityPublic}
	db.submissions[id] = models.Submission{
		ID:           id,
		AssignmentID: "asg-1",
		WorkerID:     workerID,
		VideoID:      videoID,
		Status:       models.SubmissionStatusApproved,
		Version:      "1.0",
		CreatedAt:    approvedAt.Add(-time.Hour),
		UpdatedAt:    approvedAt,
		ApprovedAt:   &approvedAt,
	}
}

// settledElsewhere reports whether a submission is itemised in a settlement of
// another period. Callers hold db.mu.
func (db *memDB) settledElsewhere(submissionID string, year, month int) bool {
	for _, item := range db.items {
		if item.SubmissionID != submissionID {
			continue
		}
		settlement := db.settlements[item.SettlementID]
		if settlement.Year != year || settlement.Month != month {
			return true
		}
	}
	return false
}

// submissions

type memSubmissions struct{ db *memDB }

func (r memSubmissions) Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if submission.ID == "" {
		submission.ID = r.db.nextID("sub")
	}
	for _, existing := range r.db.submissions {
		if existing.RootID() == submission.RootID() && existing.VersionSlot == submission.VersionSlot {
			return fmt.Errorf("insert submission: %w", uniqueViolation)
		}
	}
	now := time.Now().UTC()
	submission.CreatedAt = now.Add(time.Duration(r.db.seq) * time.Millisecond)
	submission.UpdatedAt = submission.CreatedAt
	r.db.submissions[submission.ID] = *submission
	return nil
}

func (r memSubmissions) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	submission, ok := r.db.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &submission, nil
}

func (r memSubmissions) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error) {
	return r.GetByID(ctx, exec, id)
}

func (r memSubmissions) ListChain(ctx context.Context, exec sqlx.ExtContext, rootID string) ([]models.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var chain []models.Submission
	for _, submission := range r.db.submissions {
		if submission.ID == rootID || (submission.ParentID != nil && *submission.ParentID == rootID) {
			chain = append(chain, submission)
		}
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].VersionSlot < chain[j].VersionSlot })
	return chain, nil
}

func (r memSubmissions) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var matched []models.Submission
	for _, submission := range r.db.submissions {
		if filter.WorkerID != "" && submission.WorkerID != filter.WorkerID {
			continue
		}
		if filter.AssignmentID != "" && submission.AssignmentID != filter.AssignmentID {
			continue
		}
		if len(filter.Status) > 0 {
			found := false
			for _, status := range filter.Status {
				found = found || status == submission.Status
			}
			if !found {
				continue
			}
		}
		matched = append(matched, submission)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	if filter.Offset >= total {
		return []models.Submission{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (r memSubmissions) Transition(ctx context.Context, exec sqlx.ExtContext, params repository.TransitionParams) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	submission, ok := r.db.submissions[params.ID]
	if !ok || submission.Status != params.From {
		return sql.ErrNoRows
	}
	submission.Status = params.To
	submission.UpdatedAt = time.Now().UTC()
	if params.ClearReview {
		submission.ReviewerID = nil
		submission.ReviewedAt = nil
		submission.ApprovedAt = nil
		submission.ReviewSummary = nil
	} else {
		if params.ReviewerID != nil {
			submission.ReviewerID = params.ReviewerID
		}
		if params.ReviewedAt != nil {
			submission.ReviewedAt = params.ReviewedAt
		}
		if params.ApprovedAt != nil {
			submission.ApprovedAt = params.ApprovedAt
		}
		if params.ReviewSummary != nil {
			submission.ReviewSummary = params.ReviewSummary
		}
	}
	r.db.submissions[params.ID] = submission
	return nil
}

func (r memSubmissions) DeletePending(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	submission, ok := r.db.submissions[id]
	if !ok || submission.Status != models.SubmissionStatusPending {
		return sql.ErrNoRows
	}
	delete(r.db.submissions, id)
	for fid, feedback := range r.db.feedbacks {
		if feedback.SubmissionID == id {
			delete(r.db.feedbacks, fid)
		}
	}
	delete(r.db.analysis, id)
	return nil
}

func (r memSubmissions) ListApprovedInPeriod(ctx context.Context, exec sqlx.ExtContext, from, to time.Time) ([]models.ApprovedWork, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var rows []models.ApprovedWork
	for _, submission := range r.db.submissions {
		if submission.Status != models.SubmissionStatusApproved {
			continue
		}
		if submission.UpdatedAt.Before(from) || !submission.UpdatedAt.Before(to) {
			continue
		}
		if r.db.settledElsewhere(submission.ID, from.Year(), int(from.Month())) {
			continue
		}
		video := r.db.videos[submission.VideoID]
		rows = append(rows, models.ApprovedWork{
			SubmissionID: submission.ID,
			WorkerID:     submission.WorkerID,
			VideoID:      video.ID,
			VideoTitle:   video.Title,
			CustomRate:   video.CustomRate,
			CreatedAt:    submission.CreatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WorkerID != rows[j].WorkerID {
			return rows[i].WorkerID < rows[j].WorkerID
		}
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].SubmissionID < rows[j].SubmissionID
	})
	return rows, nil
}

func (r memSubmissions) ListAwaitingAnalysis(ctx context.Context, limit int) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []string
	for id := range r.db.submissions {
		result, ok := r.db.analysis[id]
		if !ok || result.Status == models.AnalysisStatusError {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// videos

type memVideos struct{ db *memDB }

func (r memVideos) Create(ctx context.Context, exec sqlx.ExtContext, video *models.Video) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if video.ID == "" {
		video.ID = r.db.nextID("video")
	}
	r.db.videos[video.ID] = *video
	return nil
}

func (r memVideos) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Video, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	video, ok := r.db.videos[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &video, nil
}

func (r memVideos) SetVisibility(ctx context.Context, exec sqlx.ExtContext, id string, visibility models.VideoVisibility) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	video, ok := r.db.videos[id]
	if !ok {
		return sql.ErrNoRows
	}
	video.Visibility = visibility
	r.db.videos[id] = video
	return nil
}

func (r memVideos) SetCustomRate(ctx context.Context, id string, rate *int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	video, ok := r.db.videos[id]
	if !ok {
		return sql.ErrNoRows
	}
	video.CustomRate = rate
	r.db.videos[id] = video
	return nil
}

func (r memVideos) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.videos, id)
	return nil
}

// feedback

type memFeedbacks struct{ db *memDB }

func (r memFeedbacks) Create(ctx context.Context, exec sqlx.ExtContext, feedback *models.Feedback) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if feedback.ID == "" {
		feedback.ID = r.db.nextID("fb")
	}
	r.db.feedbacks[feedback.ID] = *feedback
	return nil
}

func (r memFeedbacks) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Feedback, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	feedback, ok := r.db.feedbacks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &feedback, nil
}

func (r memFeedbacks) ListBySubmission(ctx context.Context, submissionID string) ([]models.Feedback, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var items []models.Feedback
	for _, feedback := range r.db.feedbacks {
		if feedback.SubmissionID == submissionID {
			items = append(items, feedback)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r memFeedbacks) CountBySubmission(ctx context.Context, exec sqlx.ExtContext, submissionID string) (int, error) {
	items, _ := r.ListBySubmission(ctx, submissionID)
	return len(items), nil
}

func (r memFeedbacks) Update(ctx context.Context, feedback *models.Feedback) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.feedbacks[feedback.ID]; !ok {
		return sql.ErrNoRows
	}
	r.db.feedbacks[feedback.ID] = *feedback
	return nil
}

func (r memFeedbacks) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.feedbacks[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.db.feedbacks, id)
	return nil
}

// assignments and users

type memAssignments struct{ db *memDB }

func (r memAssignments) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	assignment, ok := r.db.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &assignment, nil
}

type memUsers struct{ db *memDB }

func (r memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func (r memUsers) RateProfile(ctx context.Context, exec sqlx.ExtContext, workerID string) (*models.WorkerRateProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[workerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	profile := &models.WorkerRateProfile{WorkerID: user.ID, FullName: user.FullName, BaseRate: user.BaseRate}
	if user.GradeID != nil {
		if rate, ok := r.db.grades[*user.GradeID]; ok {
			profile.GradeRate = &rate
		}
	}
	return profile, nil
}

func (r memUsers) SetBaseRate(ctx context.Context, workerID string, rate *int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[workerID]
	if !ok || user.Role != models.RoleWorker {
		return sql.ErrNoRows
	}
	user.BaseRate = rate
	r.db.users[workerID] = user
	return nil
}

// settlements

type memSettlements struct{ db *memDB }

func (r memSettlements) LockPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int) error {
	return r.db.failLockPeriod
}

func (r memSettlements) CountByPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int) (int, error) {
	list, _ := r.ListByPeriod(ctx, exec, year, month, "")
	return len(list), nil
}

func (r memSettlements) Create(ctx context.Context, exec sqlx.ExtContext, settlement *models.Settlement) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.settlements {
		if existing.WorkerID == settlement.WorkerID && existing.Year == settlement.Year && existing.Month == settlement.Month {
			return fmt.Errorf("insert settlement: %w", uniqueViolation)
		}
	}
	if settlement.ID == "" {
		settlement.ID = r.db.nextID("stl")
	}
	if settlement.Status == "" {
		settlement.Status = models.SettlementStatusPending
	}
	r.db.settlements[settlement.ID] = *settlement
	return nil
}

func (r memSettlements) CreateItems(ctx context.Context, exec sqlx.ExtContext, items []models.SettlementItem) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = r.db.nextID("item")
		}
		r.db.items[items[i].ID] = items[i]
	}
	return nil
}

func (r memSettlements) UpdateTotal(ctx context.Context, exec sqlx.ExtContext, id string, total int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	settlement, ok := r.db.settlements[id]
	if !ok {
		return sql.ErrNoRows
	}
	settlement.TotalAmount = total
	r.db.settlements[id] = settlement
	return nil
}

func (r memSettlements) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Settlement, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	settlement, ok := r.db.settlements[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &settlement, nil
}

func (r memSettlements) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Settlement, error) {
	return r.GetByID(ctx, exec, id)
}

func (r memSettlements) ListByPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int, workerID string) ([]models.Settlement, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []models.Settlement
	for _, settlement := range r.db.settlements {
		if settlement.Year != year || settlement.Month != month {
			continue
		}
		if workerID != "" && settlement.WorkerID != workerID {
			continue
		}
		list = append(list, settlement)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].WorkerID < list[j].WorkerID })
	return list, nil
}

func (r memSettlements) ListItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) ([]models.SettlementItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failListItems != nil {
		return nil, r.db.failListItems
	}
	var list []models.SettlementItem
	for _, item := range r.db.items {
		if item.SettlementID == settlementID {
			list = append(list, item)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	return list, nil
}

func (r memSettlements) GetItem(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SettlementItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	item, ok := r.db.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (r memSettlements) UpdateItemAmounts(ctx context.Context, exec sqlx.ExtContext, item *models.SettlementItem) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.items[item.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.AdjustedAmount = item.AdjustedAmount
	stored.FinalAmount = item.FinalAmount
	r.db.items[item.ID] = stored
	return nil
}

func (r memSettlements) SumItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) (int64, error) {
	items, _ := r.ListItems(ctx, exec, settlementID)
	var total int64
	for _, item := range items {
		total += item.FinalAmount
	}
	return total, nil
}

func (r memSettlements) DeleteItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, item := range r.db.items {
		if item.SettlementID == settlementID {
			delete(r.db.items, id)
		}
	}
	return nil
}

func (r memSettlements) DeletePending(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	settlement, ok := r.db.settlements[id]
	if !ok || settlement.Status != models.SettlementStatusPending {
		return sql.ErrNoRows
	}
	delete(r.db.settlements, id)
	for itemID, item := range r.db.items {
		if item.SettlementID == id {
			delete(r.db.items, itemID)
		}
	}
	return nil
}

func (r memSettlements) Transition(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.SettlementStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	settlement, ok := r.db.settlements[id]
	if !ok || settlement.Status != from {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	settlement.Status = to
	if to == models.SettlementStatusConfirmed {
		settlement.ConfirmedAt = &now
	}
	if to == models.SettlementStatusCompleted {
		settlement.CompletedAt = &now
	}
	r.db.settlements[id] = settlement
	return nil
}

func (r memSettlements) HasLockedSubmission(ctx context.Context, exec sqlx.ExtContext, submissionID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, item := range r.db.items {
		if item.SubmissionID != submissionID {
			continue
		}
		if r.db.settlements[item.SettlementID].Status != models.SettlementStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r memSettlements) DetachFromPending(ctx context.Context, exec sqlx.ExtContext, submissionID string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []string
	for itemID, item := range r.db.items {
		if item.SubmissionID != submissionID {
			continue
		}
		if r.db.settlements[item.SettlementID].Status != models.SettlementStatusPending {
			continue
		}
		delete(r.db.items, itemID)
		ids = append(ids, item.SettlementID)
	}
	return ids, nil
}

// analysis results

type memAnalysis struct {
	db        *memDB
	finishErr error
}

func (r *memAnalysis) Get(ctx context.Context, submissionID string) (*models.AnalysisResult, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	result, ok := r.db.analysis[submissionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &result, nil
}

func (r *memAnalysis) Claim(ctx context.Context, submissionID string, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if current, ok := r.db.analysis[submissionID]; ok {
		if current.Status == models.AnalysisStatusProcessing || current.Status == models.AnalysisStatusDone {
			return false, nil
		}
	}
	r.db.analysis[submissionID] = models.AnalysisResult{SubmissionID: submissionID, Status: models.AnalysisStatusProcessing, StartedAt: &now, UpdatedAt: now}
	return true, nil
}

func (r *memAnalysis) Finish(ctx context.Context, result *models.AnalysisResult) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.finishErr != nil && result.Status == models.AnalysisStatusDone {
		return r.finishErr
	}
	stored := *result
	if current, ok := r.db.analysis[result.SubmissionID]; ok {
		stored.StartedAt = current.StartedAt
	}
	r.db.analysis[result.SubmissionID] = stored
	return nil
}

func (r *memAnalysis) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var count int64
	for id, result := range r.db.analysis {
		if result.Status == models.AnalysisStatusProcessing && result.StartedAt != nil && result.StartedAt.Before(cutoff) {
			result.Status = models.AnalysisStatusError
			r.db.analysis[id] = result
			count++
		}
	}
	return count, nil
}

// media, analyzer and queue stubs

type stubMedia struct {
	mu         sync.Mutex
	missing    map[string]bool
	presignErr error
	removeErr  error
	removed    []string
}

func (m *stubMedia) Stat(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing[key] {
		return fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return nil
}

func (m *stubMedia) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, key)
	return m.removeErr
}

func (m *stubMedia) PresignGet(ctx context.Context, key string) (string, error) {
	if m.presignErr != nil {
		return "", m.presignErr
	}
	return "https://media.test/" + key + "?sig=1", nil
}

type stubDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *stubDispatcher) Dispatch(submissionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, submissionID)
}

type stubQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *stubQueue) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type analyzerStep struct {
	payload *models.AnalysisPayload
	err     error
}

type stubAnalyzer struct {
	steps []analyzerStep
	calls int
	urls  []string
}

func (a *stubAnalyzer) Analyze(ctx context.Context, mediaURL string) (*models.AnalysisPayload, error) {
	a.urls = append(a.urls, mediaURL)
	step := a.steps[len(a.steps)-1]
	if a.calls < len(a.steps) {
		step = a.steps[a.calls]
	}
	a.calls++
	return step.payload, step.err
}

func claimsFor(id string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: role}
}

func strPtr(v string) *string { return &v }
