// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/eventloop"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

type fakeKiller struct{ killed []string }

func (f *fakeKiller) KillChild(v api.VM) error {
	f.killed = append(f.killed, v.Name)
	return nil
}

type fakeScreenshotter struct {
	data []byte
	err  error
}

func (f *fakeScreenshotter) Screenshot(v api.VM) ([]byte, error) { return f.data, f.err }

type fakeShutdowner struct {
	called              bool
	killTasks, killVMs  bool
}

func (f *fakeShutdowner) Shutdown(ctx context.Context, killTasks, killVMs bool) error {
	f.called = true
	f.killTasks, f.killVMs = killTasks, killVMs
	return nil
}

func newDispatcher(t *testing.T, mem *store.Memory) (*Dispatcher, *eventloop.Loop, *fakeKiller, *fakeShutdowner) {
	t.Helper()
	loop := eventloop.New()
	var ticked int
	loop.Add(eventloop.Event{Name: "scheduler-tick", Expires: time.Now().Add(time.Hour), Repeat: true, Timeout: time.Hour,
		Handler: func(context.Context, time.Time) { ticked++ }})

	killer := &fakeKiller{}
	shutdowner := &fakeShutdowner{}
	d := &Dispatcher{
		Store:          mem,
		Killer:         killer,
		Screenshotter:  &fakeScreenshotter{data: []byte("png-bytes")},
		Shutdown:       shutdowner,
		Loop:           loop,
		DataDir:        t.TempDir(),
		RescheduleName: "scheduler-tick",
	}
	return d, loop, killer, shutdowner
}

func TestDispatchPing(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), []string{"ping"})
	require.Equal(t, "1pong", r.Encode())
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), []string{"bogus"})
	require.False(t, r.ok)
	require.Equal(t, "0", r.Encode()[:1])
}

func TestDispatchShutdownParsesFlags(t *testing.T) {
	d, _, _, shutdowner := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), []string{"shutdown", "1", "0"})
	require.Equal(t, "1", r.Encode())
	require.True(t, shutdowner.called)
	require.True(t, shutdowner.killTasks)
	require.False(t, shutdowner.killVMs)
}

func TestDispatchShutdownRejectsBadFlag(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), []string{"shutdown", "maybe", "0"})
	require.False(t, r.ok)
}

func TestDispatchRescheduleJobsTriggersWithoutOverwritingHandler(t *testing.T) {
	d, loop, _, _ := newDispatcher(t, store.NewMemory())
	now := time.Now()
	r := d.Dispatch(context.Background(), now, []string{"reschedulejobs"})
	require.True(t, r.ok)

	// The real scheduler-tick handler/repeat/timeout must survive the
	// forced reschedule; only Expires moves.
	var ran bool
	loop.RunEvents(context.Background(), now)
	_ = ran
	require.True(t, loop.Has("scheduler-tick"), "reschedule must not delete the event")
}

func TestDispatchRescheduleJobsWithoutRegisteredTickFails(t *testing.T) {
	loop := eventloop.New()
	d := &Dispatcher{Store: store.NewMemory(), Loop: loop, RescheduleName: "scheduler-tick"}
	r := d.Dispatch(context.Background(), time.Now(), []string{"reschedulejobs"})
	require.False(t, r.ok)
}

func TestDispatchVMStatusChangeForcesReschedule(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), []string{"vmstatuschange", "win64-1 host-a", "idle", "dirty"})
	require.True(t, r.ok)
}

func TestDispatchJobCancelSkipsQueuedAndKillsRunning(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(
		[]api.VM{{Name: "win64-1", Hostname: "host-a", Status: api.StatusRunning}},
		[]api.Job{{ID: 1, Status: api.JobRunning}},
		map[int64][]api.Step{1: {{JobID: 1, No: 0, Status: api.JobRunning}}},
		map[int64][]api.Task{1: {
			{JobID: 1, StepNo: 0, No: 0, VM: "win64-1", Status: api.TaskRunning},
			{JobID: 1, StepNo: 0, No: 1, VM: "win64-2", Status: api.TaskQueued},
		}},
	)
	d, _, killer, _ := newDispatcher(t, mem)

	r := d.Dispatch(context.Background(), time.Now(), []string{"jobcancel", "1"})
	require.True(t, r.ok)
	require.Equal(t, []string{"win64-1"}, killer.killed)

	j, err := mem.LoadJob(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, j.Status.Terminal())

	_, tasks, err := mem.LoadStepsAndTasks(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, api.TaskCanceled, tasks[0].Status)
	require.Equal(t, api.TaskSkipped, tasks[1].Status)
}

func TestDispatchJobCancelUnknownJob(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), []string{"jobcancel", "99"})
	require.False(t, r.ok)
}

func TestDispatchJobRestartRejectsNonTerminal(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(nil, []api.Job{{ID: 5, Status: api.JobRunning}}, nil, nil)
	d, _, _, _ := newDispatcher(t, mem)

	r := d.Dispatch(context.Background(), time.Now(), []string{"jobrestart", "5"})
	require.False(t, r.ok)
}

func TestDispatchJobRestartRequeues(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(nil, []api.Job{{ID: 7, Status: api.JobBadBuild}},
		map[int64][]api.Step{7: {{JobID: 7, No: 0, Status: api.JobBadBuild}}},
		map[int64][]api.Task{7: {{JobID: 7, StepNo: 0, No: 0, VM: "win64-1", Status: api.TaskBadBuild}}},
	)
	d, _, _, _ := newDispatcher(t, mem)

	r := d.Dispatch(context.Background(), time.Now(), []string{"jobrestart", "7"})
	require.True(t, r.ok)

	j, err := mem.LoadJob(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, api.JobQueued, j.Status)
}

func TestDispatchGetScreenshotEncodesBase64(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed([]api.VM{{Name: "win64-1", Hostname: "host-a"}}, nil, nil, nil)
	d, _, _, _ := newDispatcher(t, mem)

	r := d.Dispatch(context.Background(), time.Now(), []string{"getscreenshot", "win64-1"})
	require.True(t, r.ok)
	decoded, err := base64.StdEncoding.DecodeString(r.Encode()[1:])
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(decoded))
}

func TestDispatchGetScreenshotUnknownVM(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), []string{"getscreenshot", "ghost"})
	require.False(t, r.ok)
}

func TestDispatchPatchTriggersAlwaysSucceed(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	for _, cmd := range []string{"winepatchmlsubmission", "winepatchwebsubmission"} {
		r := d.Dispatch(context.Background(), time.Now(), []string{cmd})
		require.True(t, r.ok, cmd)
	}
}

func TestDispatchJobStatusChangeLogsTerminal(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), []string{"jobstatuschange", "3", "running", "completed"})
	require.True(t, r.ok)
}

func TestDispatchEmptyCommand(t *testing.T) {
	d, _, _, _ := newDispatcher(t, store.NewMemory())
	r := d.Dispatch(context.Background(), time.Now(), nil)
	require.False(t, r.ok)
}
