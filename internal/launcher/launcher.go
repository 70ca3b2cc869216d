// Package launcher starts worker containers for dispatched batches.
package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadqual/internal/config"
	"github.com/sells-group/leadqual/internal/model"
)

// JobEnvVar carries the job descriptor into the launched container.
const JobEnvVar = "LEADQUAL_JOB"

// Launcher starts one worker container per dispatched batch and returns
// an opaque execution handle for the task record.
type Launcher interface {
	Launch(ctx context.Context, job model.JobDescriptor) (string, error)
}

// LaunchError wraps failures from the container platform so the
// dispatcher can fail the task row without aborting the dispatch loop.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launcher: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunch reports whether err is a LaunchError.
func IsLaunch(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}

// ecsAPI is the slice of the ECS client the launcher uses.
type ecsAPI interface {
	RunTask(ctx context.Context, params *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
}

// ECSLauncher runs worker tasks on Fargate.
type ECSLauncher struct {
	client ecsAPI
	cfg    config.LauncherConfig
}

// NewECS creates an ECSLauncher from configuration.
func NewECS(ctx context.Context, cfg config.LauncherConfig, region string) (*ECSLauncher, error) {
	if cfg.Cluster == "" || cfg.TaskDefinition == "" {
		return nil, eris.New("launcher: cluster and task_definition required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "launcher: load aws config")
	}
	return &ECSLauncher{client: ecs.NewFromConfig(awsCfg), cfg: cfg}, nil
}

func (l *ECSLauncher) Launch(ctx context.Context, job model.JobDescriptor) (string, error) {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return "", eris.Wrap(err, "launcher: marshal job")
	}

	assignIP := types.AssignPublicIpDisabled
	if l.cfg.AssignPublicIP {
		assignIP = types.AssignPublicIpEnabled
	}

	out, err := l.client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(l.cfg.Cluster),
		TaskDefinition: aws.String(l.cfg.TaskDefinition),
		LaunchType:     types.LaunchTypeFargate,
		Count:          aws.Int32(1),
		NetworkConfiguration: &types.NetworkConfiguration{
			AwsvpcConfiguration: &types.AwsVpcConfiguration{
				Subnets:        l.cfg.Subnets,
				SecurityGroups: l.cfg.SecurityGroups,
				AssignPublicIp: assignIP,
			},
		},
		Overrides: &types.TaskOverride{
			ContainerOverrides: []types.ContainerOverride{
				{
					Name: aws.String(l.cfg.Container),
					Environment: []types.KeyValuePair{
						{Name: aws.String(JobEnvVar), Value: aws.String(string(jobJSON))},
					},
				},
			},
		},
	})
	if err != nil {
		return "", &LaunchError{Err: err}
	}
	if len(out.Failures) > 0 {
		f := out.Failures[0]
		return "", &LaunchError{Err: eris.Errorf("run task failure: %s (%s)",
			aws.ToString(f.Reason), aws.ToString(f.Detail))}
	}
	if len(out.Tasks) == 0 {
		return "", &LaunchError{Err: eris.New("run task returned no tasks")}
	}
	return aws.ToString(out.Tasks[0].TaskArn), nil
}
