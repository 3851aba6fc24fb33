package action

import (
	"context"
	"errors"
	"testing"

	"compressarr/internal/errs"
	"compressarr/pluginsdk"
)

type fakeAction struct {
	startFn func(ctx context.Context, job *pluginsdk.Job) (*pluginsdk.Job, error)
	killFn  func(ctx context.Context, jobIdentifier string) error
}

func (f *fakeAction) Start(ctx context.Context, job *pluginsdk.Job) (*pluginsdk.Job, error) {
	return f.startFn(ctx, job)
}

func (f *fakeAction) Kill(ctx context.Context, jobIdentifier string) error {
	return f.killFn(ctx, jobIdentifier)
}

func constructorFor(a *fakeAction) pluginsdk.ActionConstructor {
	return func(name string, config map[string]any, host pluginsdk.Host) (pluginsdk.Action, error) {
		return a, nil
	}
}

func TestNewInvokesConstructorWithNameAndConfig(t *testing.T) {
	var gotName string
	var gotConfig map[string]any
	constructor := func(name string, config map[string]any, host pluginsdk.Host) (pluginsdk.Action, error) {
		gotName, gotConfig = name, config
		return &fakeAction{}, nil
	}

	cfg := map[string]any{"bitrate": 4000.0}
	inst, err := New("encode", constructor, cfg, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if inst.Name != "encode" || gotName != "encode" {
		t.Fatalf("got name %q", gotName)
	}
	if gotConfig["bitrate"] != 4000.0 {
		t.Fatalf("got config %+v", gotConfig)
	}
}

func TestNewPropagatesConstructorError(t *testing.T) {
	constructor := func(name string, config map[string]any, host pluginsdk.Host) (pluginsdk.Action, error) {
		return nil, errors.New("boom")
	}
	if _, err := New("encode", constructor, nil, nil); err == nil {
		t.Fatal("expected constructor error to propagate")
	}
}

func TestStartReturnsUpdatedJob(t *testing.T) {
	want := pluginsdk.NewJob("movie", "/src", "/tmp/movie", nil)
	fa := &fakeAction{startFn: func(ctx context.Context, job *pluginsdk.Job) (*pluginsdk.Job, error) {
		return want, nil
	}}
	inst, _ := New("encode", constructorFor(fa), nil, nil)

	got, err := inst.Start(context.Background(), pluginsdk.NewJob("movie", "/src", "/tmp/movie", nil), "/src")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got != want {
		t.Fatal("expected Start to return the action's produced job")
	}
}

func TestStartTranslatesErrKilled(t *testing.T) {
	fa := &fakeAction{startFn: func(ctx context.Context, job *pluginsdk.Job) (*pluginsdk.Job, error) {
		return nil, pluginsdk.ErrKilled
	}}
	inst, _ := New("encode", constructorFor(fa), nil, nil)

	_, err := inst.Start(context.Background(), nil, "/src")
	if !errs.IsKilled(err) {
		t.Fatalf("got %v, want a KilledError", err)
	}
}

func TestStartWrapsOtherErrors(t *testing.T) {
	fa := &fakeAction{startFn: func(ctx context.Context, job *pluginsdk.Job) (*pluginsdk.Job, error) {
		return nil, errors.New("disk full")
	}}
	inst, _ := New("encode", constructorFor(fa), nil, nil)

	_, err := inst.Start(context.Background(), nil, "/src")
	if errs.Kind(err) != "action" {
		t.Fatalf("got kind %q, want action", errs.Kind(err))
	}
}

func TestKillDelegatesToAction(t *testing.T) {
	called := ""
	fa := &fakeAction{killFn: func(ctx context.Context, jobIdentifier string) error {
		called = jobIdentifier
		return nil
	}}
	inst, _ := New("encode", constructorFor(fa), nil, nil)

	if err := inst.Kill(context.Background(), "/src"); err != nil {
		t.Fatalf("Kill returned error: %v", err)
	}
	if called != "/src" {
		t.Fatalf("got %q", called)
	}
}
