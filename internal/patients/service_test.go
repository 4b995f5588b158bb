package patients

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"citas-backend/internal/models"
)

type fakeRepository struct {
	byID    map[string]models.Patient
	nextID  int
	creates int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{byID: make(map[string]models.Patient)}
}

func (f *fakeRepository) Create(ctx context.Context, patient models.Patient) (models.Patient, error) {
	for _, existing := range f.byID {
		if existing.Email == strings.ToLower(patient.Email) {
			return models.Patient{}, ErrEmailTaken
		}
	}
	f.nextID++
	f.creates++
	patient.ID = fmt.Sprintf("p%d", f.nextID)
	patient.Email = strings.ToLower(patient.Email)
	f.byID[patient.ID] = patient
	return patient, nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	patient, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &patient, nil
}

func (f *fakeRepository) FindByEmail(ctx context.Context, email string) (*models.Patient, error) {
	for _, patient := range f.byID {
		if patient.Email == strings.ToLower(strings.TrimSpace(email)) {
			p := patient
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) Update(ctx context.Context, id string, update UpdateRequest) (*models.Patient, error) {
	patient, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	if update.FullName != "" {
		patient.FullName = update.FullName
	}
	if update.Phone != "" {
		patient.Phone = update.Phone
	}
	if update.Notes != nil {
		patient.Notes = *update.Notes
	}
	f.byID[id] = patient
	return &patient, nil
}

func (f *fakeRepository) List(ctx context.Context, search string, limit, offset int64) ([]models.Patient, error) {
	items := make([]models.Patient, 0, len(f.byID))
	for _, patient := range f.byID {
		items = append(items, patient)
	}
	return items, nil
}

func TestCreateOrFetchCreatesNewPatient(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)

	patient, created, err := svc.CreateOrFetch(context.Background(), CreateRequest{
		FullName: "Ana García",
		Email:    "Ana@Example.com",
		Phone:    "+34600111222",
	})
	if err != nil {
		t.Fatalf("CreateOrFetch: %v", err)
	}
	if !created {
		t.Fatal("expected a new patient")
	}
	if patient.Email != "ana@example.com" {
		t.Fatalf("email should be normalized, got %q", patient.Email)
	}
}

func TestCreateOrFetchReusesExistingByEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)

	first, _, err := svc.CreateOrFetch(context.Background(), CreateRequest{
		FullName: "Ana García",
		Email:    "ana@example.com",
		Phone:    "+34600111222",
	})
	if err != nil {
		t.Fatalf("first CreateOrFetch: %v", err)
	}

	second, created, err := svc.CreateOrFetch(context.Background(), CreateRequest{
		FullName: "Ana García López",
		Email:    "ANA@example.com",
		Phone:    "+34600999888",
	})
	if err != nil {
		t.Fatalf("second CreateOrFetch: %v", err)
	}
	if created {
		t.Fatal("existing patient should be reused, not recreated")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same patient id, got %s and %s", first.ID, second.ID)
	}
	if second.FullName != "Ana García López" || second.Phone != "+34600999888" {
		t.Fatalf("contact data should be refreshed: %+v", second)
	}
	if repo.creates != 1 {
		t.Fatalf("expected a single create, got %d", repo.creates)
	}
}
