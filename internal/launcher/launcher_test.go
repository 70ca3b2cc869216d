package launcher

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadqual/internal/config"
	"github.com/sells-group/leadqual/internal/model"
)

type fakeECS struct {
	input *ecs.RunTaskInput
	out   *ecs.RunTaskOutput
	err   error
}

func (f *fakeECS) RunTask(ctx context.Context, params *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error) {
	f.input = params
	return f.out, f.err
}

func newTestLauncher(fake *fakeECS) *ECSLauncher {
	return &ECSLauncher{client: fake, cfg: config.LauncherConfig{
		Cluster:        "leadqual",
		TaskDefinition: "leadqual-worker:7",
		Container:      "leadqual-worker",
		Subnets:        []string{"subnet-1"},
	}}
}

func TestECSLauncher_Launch(t *testing.T) {
	fake := &fakeECS{out: &ecs.RunTaskOutput{
		Tasks: []types.Task{{TaskArn: aws.String("arn:aws:ecs:task/abc")}},
	}}
	l := newTestLauncher(fake)

	handle, err := l.Launch(context.Background(), model.JobDescriptor{
		BatchRef: "jobs/job-1/batch-0000.json",
		TaskID:   "task-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:ecs:task/abc", handle)

	require.NotNil(t, fake.input)
	assert.Equal(t, "leadqual", aws.ToString(fake.input.Cluster))
	env := fake.input.Overrides.ContainerOverrides[0].Environment
	require.Len(t, env, 1)
	assert.Equal(t, JobEnvVar, aws.ToString(env[0].Name))
	assert.JSONEq(t, `{"batchRef":"jobs/job-1/batch-0000.json","taskId":"task-1"}`, aws.ToString(env[0].Value))
}

func TestECSLauncher_PlatformFailure(t *testing.T) {
	fake := &fakeECS{out: &ecs.RunTaskOutput{
		Failures: []types.Failure{{Reason: aws.String("RESOURCE:MEMORY"), Detail: aws.String("no capacity")}},
	}}
	l := newTestLauncher(fake)

	_, err := l.Launch(context.Background(), model.JobDescriptor{TaskID: "task-1"})
	require.Error(t, err)
	assert.True(t, IsLaunch(err))
	assert.Contains(t, err.Error(), "RESOURCE:MEMORY")
}

func TestECSLauncher_APIError(t *testing.T) {
	fake := &fakeECS{err: errors.New("throttled")}
	l := newTestLauncher(fake)

	_, err := l.Launch(context.Background(), model.JobDescriptor{TaskID: "task-1"})
	require.Error(t, err)
	assert.True(t, IsLaunch(err))
}

func TestIsLaunch_OtherError(t *testing.T) {
	assert.False(t, IsLaunch(errors.New("boom")))
	assert.False(t, IsLaunch(nil))
}
