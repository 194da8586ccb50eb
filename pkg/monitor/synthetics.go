package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/synthetics"
	syntypes "github.com/aws/aws-sdk-go-v2/service/synthetics/types"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
)

// maxPage is the largest page GetCanaryRuns accepts
const maxPage = 100

// SyntheticsAPI is the subset of the Synthetics client the runtime calls
type SyntheticsAPI interface {
	GetCanary(ctx context.Context, in *synthetics.GetCanaryInput, opts ...func(*synthetics.Options)) (*synthetics.GetCanaryOutput, error)
	GetCanaryRuns(ctx context.Context, in *synthetics.GetCanaryRunsInput, opts ...func(*synthetics.Options)) (*synthetics.GetCanaryRunsOutput, error)
}

// Synthetics is the Runtime backed by CloudWatch Synthetics
type Synthetics struct {
	api SyntheticsAPI
}

// NewSynthetics creates a runtime from an AWS configuration
func NewSynthetics(cfg aws.Config) *Synthetics {
	return &Synthetics{api: synthetics.NewFromConfig(cfg)}
}

// NewSyntheticsWithAPI creates a runtime around an existing client
func NewSyntheticsWithAPI(api SyntheticsAPI) *Synthetics {
	return &Synthetics{api: api}
}

func (s *Synthetics) State(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetCanary(ctx, &synthetics.GetCanaryInput{Name: aws.String(name)})
	if err != nil {
		return "", wrapNotFound(name, err)
	}
	if out.Canary == nil || out.Canary.Status == nil {
		return "", nil
	}
	return string(out.Canary.Status.State), nil
}

func (s *Synthetics) Runs(ctx context.Context, name string, limit int) ([]Run, error) {
	var (
		runs  []Run
		token *string
	)
	for limit <= 0 || len(runs) < limit {
		page := maxPage
		if limit > 0 && limit-len(runs) < page {
			page = limit - len(runs)
		}

		out, err := s.api.GetCanaryRuns(ctx, &synthetics.GetCanaryRunsInput{
			Name:       aws.String(name),
			MaxResults: aws.Int32(int32(page)),
			NextToken:  token,
		})
		if err != nil {
			return nil, wrapNotFound(name, err)
		}
		for _, r := range out.CanaryRuns {
			runs = append(runs, convertRun(r))
		}

		token = out.NextToken
		if token == nil || len(out.CanaryRuns) == 0 {
			break
		}
	}

	logger := log.WithComponent("monitor")
	logger.Debug().Str("canary", name).Int("runs", len(runs)).Msg("canary runs fetched")
	return runs, nil
}

func convertRun(r syntypes.CanaryRun) Run {
	run := Run{ID: aws.ToString(r.Id)}
	if r.Status != nil {
		run.State = RunState(r.Status.State)
		run.Reason = aws.ToString(r.Status.StateReason)
	}
	if r.Timeline != nil {
		run.Started = aws.ToTime(r.Timeline.Started)
		run.Completed = aws.ToTime(r.Timeline.Completed)
	}
	return run
}

func wrapNotFound(name string, err error) error {
	var notFound *syntypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrCanaryNotFound, name)
	}
	return fmt.Errorf("failed to query canary %s: %w", name, err)
}
