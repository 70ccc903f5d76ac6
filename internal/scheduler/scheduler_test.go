package scheduler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeJob(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write job: %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadJobsValidatesAndSlugs(t *testing.T) {
	dir := t.TempDir()
	writeJob(t, dir, "daily.json", `{
		"name": "Daily Standup Notes",
		"schedule": "0 9 * * 1-5",
		"prompt": "summarize yesterday's commits"
	}`)
	writeJob(t, dir, "broken.json", `{"name": "x"}`)
	writeJob(t, dir, "badcron.json", `{
		"name": "bad",
		"schedule": "not a cron",
		"prompt": "p"
	}`)
	writeJob(t, dir, "notes.txt", "ignored")

	jobs, broken, err := LoadJobs(dir)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("job count = %d, want 1", len(jobs))
	}
	if jobs[0].ID != "daily-standup-notes" {
		t.Fatalf("job id = %q", jobs[0].ID)
	}
	if len(broken) != 2 {
		t.Fatalf("broken count = %d, want 2: %v", len(broken), broken)
	}
	if _, ok := broken["broken.json"]; !ok {
		t.Fatalf("schema failure not reported: %v", broken)
	}
	if _, ok := broken["badcron.json"]; !ok {
		t.Fatalf("cron failure not reported: %v", broken)
	}
}

func TestLoadJobsMissingDir(t *testing.T) {
	jobs, broken, err := LoadJobs(filepath.Join(t.TempDir(), "nope"))
	if err != nil || jobs != nil || broken != nil {
		t.Fatalf("missing dir: jobs=%v broken=%v err=%v", jobs, broken, err)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Daily Standup":  "daily-standup",
		"  A  B!! C  ":   "a-b-c",
		"already-slug":   "already-slug",
		"Ünïcode Name 9": "n-code-name-9",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 7, 1, 8, 30, 0, 0, time.UTC)
	next, err := NextRunTime("0 9 * * *", after)
	if err != nil {
		t.Fatalf("NextRunTime: %v", err)
	}
	want := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
	if _, err := NextRunTime("bogus", after); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTickFiresDueJobs(t *testing.T) {
	dir := t.TempDir()
	writeJob(t, dir, "every-minute.json", `{
		"name": "Every Minute",
		"schedule": "* * * * *",
		"prompt": "do the thing"
	}`)
	writeJob(t, dir, "disabled.json", `{
		"name": "Disabled",
		"schedule": "* * * * *",
		"prompt": "never",
		"enabled": false
	}`)

	var mu sync.Mutex
	var fired []string
	s := NewScheduler(Config{
		JobsDir: dir,
		Logger:  discardLogger(),
		Runner: func(_ context.Context, job Job) error {
			mu.Lock()
			fired = append(fired, job.ID)
			mu.Unlock()
			return nil
		},
	})

	base := time.Date(2026, 7, 1, 10, 0, 30, 0, time.UTC)
	now := base
	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	ctx := context.Background()
	// Seed tick: nothing fires, next runs are recorded.
	s.tick(ctx, true)
	mu.Lock()
	if len(fired) != 0 {
		t.Fatalf("seed tick fired %v", fired)
	}
	mu.Unlock()

	// Not yet due.
	now = base.Add(10 * time.Second)
	s.tick(ctx, false)
	mu.Lock()
	if len(fired) != 0 {
		t.Fatalf("early tick fired %v", fired)
	}
	mu.Unlock()

	// Past the next minute boundary: the enabled job fires once.
	now = base.Add(2 * time.Minute)
	s.tick(ctx, false)
	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "every-minute" {
		t.Fatalf("fired = %v, want [every-minute]", fired)
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(Config{
		JobsDir:  t.TempDir(),
		Logger:   discardLogger(),
		Interval: 50 * time.Millisecond,
	})
	s.Start(context.Background())
	time.Sleep(120 * time.Millisecond)
	s.Stop()
}
