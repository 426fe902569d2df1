package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-migrator/internal/jobs"
)

func TestStore_SaveAndGetReturnCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	job := &jobs.MigrationJob{JobID: "j1", CallerID: "u1", Status: jobs.JobStatusPending, Progress: []string{"a"}}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	job.Progress[0] = "mutated"

	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress[0] != "a" {
		t.Errorf("stored job shares memory with caller: %v", got.Progress)
	}

	if err := s.SaveJob(ctx, &jobs.MigrationJob{}); err == nil {
		t.Error("SaveJob without id should fail")
	}
	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob(missing) = %v, want ErrJobNotFound", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []struct {
		id, caller string
		status     jobs.JobStatus
	}{
		{"j1", "u1", jobs.JobStatusCompleted},
		{"j2", "u2", jobs.JobStatusFailed},
		{"j3", "u1", jobs.JobStatusRunning},
	} {
		_ = s.SaveJob(ctx, &jobs.MigrationJob{JobID: j.id, CallerID: j.caller, Status: j.status, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all oldest first", jobs.JobFilter{}, []string{"j1", "j2", "j3"}},
		{"by caller", jobs.JobFilter{CallerID: "u1"}, []string{"j1", "j3"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusFailed}, []string{"j2"}},
		{"limit", jobs.JobFilter{Limit: 2}, []string{"j1", "j2"}},
		{"offset", jobs.JobFilter{Offset: 2}, []string{"j3"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ListJobs() = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ListJobs() = %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestStore_ActiveJobForCaller(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.SaveJob(ctx, &jobs.MigrationJob{JobID: "done", CallerID: "u1", Status: jobs.JobStatusCompleted})
	if j, _ := s.ActiveJobForCaller(ctx, "u1"); j != nil {
		t.Errorf("completed job should not be active, got %s", j.JobID)
	}

	_ = s.SaveJob(ctx, &jobs.MigrationJob{JobID: "retry", CallerID: "u1", Status: jobs.JobStatusRetrying})
	j, err := s.ActiveJobForCaller(ctx, "u1")
	if err != nil || j == nil || j.JobID != "retry" {
		t.Errorf("ActiveJobForCaller() = %v, %v, want retry", j, err)
	}
}

func TestStore_AppendProgressAndUpdateStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.SaveJob(ctx, &jobs.MigrationJob{JobID: "j1", Status: jobs.JobStatusRunning})

	_ = s.AppendProgress(ctx, "j1", "one")
	_ = s.AppendProgress(ctx, "j1", "two")
	if err := s.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetJob(ctx, "j1")
	if len(got.Progress) != 2 || got.Progress[1] != "two" {
		t.Errorf("Progress = %v", got.Progress)
	}
	if got.Status != jobs.JobStatusFailed || got.Error != "boom" {
		t.Errorf("status = %s, error = %q", got.Status, got.Error)
	}

	if err := s.AppendProgress(ctx, "missing", "x"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("AppendProgress(missing) = %v", err)
	}
}
