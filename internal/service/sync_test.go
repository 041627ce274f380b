package service_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atinyakov/TaskSync/internal/codec"
	"github.com/atinyakov/TaskSync/internal/kdf"
	"github.com/atinyakov/TaskSync/internal/models"
	"github.com/atinyakov/TaskSync/internal/replica"
	"github.com/atinyakov/TaskSync/internal/service"
)

type mockReplicaRepo struct {
	LoadTasksFunc func(ctx context.Context) (map[string]models.Task, error)
	SaveTasksFunc func(ctx context.Context, tasks map[string]models.Task) error
}

func (m *mockReplicaRepo) LoadTasks(ctx context.Context) (map[string]models.Task, error) {
	return m.LoadTasksFunc(ctx)
}
func (m *mockReplicaRepo) SaveTasks(ctx context.Context, tasks map[string]models.Task) error {
	return m.SaveTasksFunc(ctx, tasks)
}

func testCodec(t *testing.T, secret string) *codec.Codec {
	t.Helper()
	salt := bytes.Repeat([]byte{9}, kdf.SaltSize)
	key, err := kdf.Derive([]byte(secret), salt)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	c, err := codec.New(key)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	return c
}

func clientEnvelope(t *testing.T, c *codec.Codec, tasks ...models.Task) []byte {
	t.Helper()
	store := replica.New("client-replica", nil)
	for _, task := range tasks {
		store.Add(task)
	}
	payload, err := store.MarshalPayload()
	if err != nil {
		t.Fatalf("MarshalPayload: %v", err)
	}
	env, err := c.Seal(payload)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	raw, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return raw
}

func taskAt(t *testing.T, id, title, by string, offset int) models.Task {
	t.Helper()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	task, err := models.FromRecord(models.Record{
		ID:         id,
		Title:      title,
		Priority:   models.PriorityMedium,
		CreatedAt:  base,
		ModifiedAt: base.Add(time.Duration(offset) * time.Second),
		ModifiedBy: by,
	})
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	return task
}

func TestSyncMergesAndPersists(t *testing.T) {
	c := testCodec(t, "shared credential")
	serverTask := taskAt(t, "t1", "Buy milk", "server", 10)

	var saved map[string]models.Task
	repo := &mockReplicaRepo{
		LoadTasksFunc: func(context.Context) (map[string]models.Task, error) {
			return map[string]models.Task{"t1": serverTask}, nil
		},
		SaveTasksFunc: func(_ context.Context, tasks map[string]models.Task) error {
			saved = tasks
			return nil
		},
	}

	svc := service.NewSyncService(repo, c, "server", nil)
	in := clientEnvelope(t, c,
		taskAt(t, "t1", "Buy milk and eggs", "client", 15),
		taskAt(t, "t2", "Call dentist", "client", 12),
	)

	out, report, err := svc.Sync(context.Background(), in)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.PeerReplicaID != "client-replica" {
		t.Fatalf("peer = %q", report.PeerReplicaID)
	}
	if len(saved) != 2 {
		t.Fatalf("saved %d tasks; want 2", len(saved))
	}
	t1 := saved["t1"]
	if t1.Title() != "Buy milk and eggs" {
		t.Fatalf("t1 = %q; later write must win", t1.Title())
	}

	// The response envelope decodes to the reconciled state.
	env, err := codec.DecodeEnvelope(out)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	plain, err := c.Open(env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	peerID, tasks, err := replica.UnmarshalPayload(plain)
	if err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if peerID != "server" {
		t.Fatalf("response replica id = %q", peerID)
	}
	t2 := tasks["t2"]
	if len(tasks) != 2 || t2.Title() != "Call dentist" {
		t.Fatalf("unexpected reconciled tasks: %v", tasks)
	}
}

func TestSyncWrongCredentialDoesNotPersist(t *testing.T) {
	repo := &mockReplicaRepo{
		LoadTasksFunc: func(context.Context) (map[string]models.Task, error) {
			return map[string]models.Task{}, nil
		},
		SaveTasksFunc: func(context.Context, map[string]models.Task) error {
			t.Fatal("SaveTasks must not be called for an unauthenticated envelope")
			return nil
		},
	}

	svc := service.NewSyncService(repo, testCodec(t, "server secret"), "server", nil)
	in := clientEnvelope(t, testCodec(t, "other secret"), taskAt(t, "t1", "x", "client", 1))

	_, _, err := svc.Sync(context.Background(), in)
	if !errors.Is(err, codec.ErrAuthentication) {
		t.Fatalf("err = %v; want ErrAuthentication", err)
	}
}

func TestSyncLoadError(t *testing.T) {
	wantErr := errors.New("db down")
	repo := &mockReplicaRepo{
		LoadTasksFunc: func(context.Context) (map[string]models.Task, error) {
			return nil, wantErr
		},
	}
	svc := service.NewSyncService(repo, testCodec(t, "s"), "server", nil)
	_, _, err := svc.Sync(context.Background(), []byte("{}"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v; want %v", err, wantErr)
	}
}

func TestSyncSaveError(t *testing.T) {
	c := testCodec(t, "shared")
	wantErr := errors.New("tx failed")
	repo := &mockReplicaRepo{
		LoadTasksFunc: func(context.Context) (map[string]models.Task, error) {
			return map[string]models.Task{}, nil
		},
		SaveTasksFunc: func(context.Context, map[string]models.Task) error {
			return wantErr
		},
	}
	svc := service.NewSyncService(repo, c, "server", nil)
	_, _, err := svc.Sync(context.Background(), clientEnvelope(t, c, taskAt(t, "t1", "x", "client", 1)))
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v; want %v", err, wantErr)
	}
}
