package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/certeva/certexam-backend/internal/model"
)

type fakeExamStore struct {
	exams     map[uuid.UUID]*model.Exam
	published []model.Exam
	getCalls  int
}

func (s *fakeExamStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	s.getCalls++
	exam, ok := s.exams[id]
	if !ok {
		return nil, errors.New("exam not found")
	}
	return exam, nil
}

func (s *fakeExamStore) ListPublished(ctx context.Context) ([]model.Exam, error) {
	return s.published, nil
}

// deadRedis returns a client pointed at a closed port so every command
// fails immediately, exercising the database-degrade paths.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func storeExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "Network Security Associate",
		DurationSeconds: 3600,
		PassingScore:    70,
		EntryToken:      "SECRET",
		Status:          model.ExamStatusPublished,
		Questions: []model.Question{
			{
				ID:             uuid.New(),
				QuestionText:   "Which port does HTTPS use?",
				QuestionType:   model.QuestionTypeSingleChoice,
				CorrectOptions: []string{"443"},
			},
		},
	}
}

func TestExamService_GetExamDegradesToStoreWhenCacheUnavailable(t *testing.T) {
	exam := storeExam()
	store := &fakeExamStore{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	svc := NewExamService(store, deadRedis(), zerolog.Nop())

	got, err := svc.GetExam(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if store.getCalls != 1 {
		t.Fatalf("store calls = %d, want 1", store.getCalls)
	}
	if got.Title != exam.Title {
		t.Fatalf("title = %q, want %q", got.Title, exam.Title)
	}
	// The engine-side read keeps the answer key.
	key := got.AnswerKey()
	if correct := key[exam.Questions[0].ID.String()]; len(correct) != 1 || correct[0] != "443" {
		t.Fatalf("answer key = %v, want [443]", correct)
	}
}

func TestExamService_GetExamPayloadStripsAnswerKey(t *testing.T) {
	exam := storeExam()
	store := &fakeExamStore{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	svc := NewExamService(store, deadRedis(), zerolog.Nop())

	payload, err := svc.GetExamPayload(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("GetExamPayload: %v", err)
	}
	if len(payload.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(payload.Questions))
	}
	if payload.Questions[0].ID != exam.Questions[0].ID {
		t.Fatal("payload must carry the question ids")
	}
}

func TestExamService_ListPublishedStripsEntryTokens(t *testing.T) {
	store := &fakeExamStore{published: []model.Exam{*storeExam(), *storeExam()}}
	svc := NewExamService(store, deadRedis(), zerolog.Nop())

	exams, err := svc.ListPublished(context.Background())
	if err != nil {
		t.Fatalf("ListPublished: %v", err)
	}
	for i := range exams {
		if exams[i].EntryToken != "" {
			t.Fatalf("exam %d leaked its entry token", i)
		}
	}
}
