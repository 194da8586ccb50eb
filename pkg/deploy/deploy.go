package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/assets"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/engine"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/events"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/reconciler"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/stack"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/storage"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/template"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// MaxTemplateBody is the largest template the engine accepts inline.
// Larger templates are uploaded next to the canary asset and passed by URL.
const MaxTemplateBody = 51200

// TemplatePrefix is where oversized templates are stored in the asset bucket
const TemplatePrefix = "templates/"

// ErrDeploymentFailed is returned when the stack reaches a failed terminal status
var ErrDeploymentFailed = errors.New("deployment failed")

// Description is the template description of every synthesized stack
const Description = "Application Signals on ECS: Fargate service with ADOT and CloudWatch agent sidecars"

// Deployer submits stacks to the engine and keeps a local record of each
// operation
type Deployer struct {
	engine     engine.Engine
	uploader   assets.Uploader
	store      storage.Store
	reconciler *reconciler.Reconciler
	publisher  events.Publisher
	now        func() time.Time
	maxBody    int
}

// NewDeployer creates a new deployer
func NewDeployer(eng engine.Engine, uploader assets.Uploader, store storage.Store, rec *reconciler.Reconciler, publisher events.Publisher) *Deployer {
	if publisher == nil {
		publisher = events.Discard
	}
	if rec == nil {
		rec = reconciler.NewReconciler(eng, publisher, reconciler.DefaultInterval)
	}
	return &Deployer{
		engine:     eng,
		uploader:   uploader,
		store:      store,
		reconciler: rec,
		publisher:  publisher,
		now:        time.Now,
		maxBody:    MaxTemplateBody,
	}
}

// Deploy packages and publishes the canary code, synthesizes the stack and
// hands the template to the engine. With wait set it follows the operation
// to a terminal status. An update that changes nothing is recorded as
// unchanged and is not an error.
func (d *Deployer) Deploy(ctx context.Context, cfg config.Config, wait bool) (*types.Deployment, error) {
	logger := log.WithStack(cfg.StackName)

	asset, err := assets.Package(cfg.Canary.AssetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to package canary code: %w", err)
	}
	bucket := assets.BucketName(cfg)
	if _, err := assets.Publish(ctx, d.uploader, bucket, asset, d.publisher); err != nil {
		return nil, fmt.Errorf("failed to publish canary code: %w", err)
	}

	st, err := stack.Synthesize(cfg, asset.Location(bucket))
	if err != nil {
		return nil, err
	}
	d.publisher.Publish(events.New(events.EventStackSynthesized, fmt.Sprintf("%d resources", st.Graph.Len()), map[string]string{
		"stack": st.Name,
	}))

	tmpl, err := template.Render(st.Graph, Description)
	if err != nil {
		return nil, err
	}
	body, err := tmpl.Compact()
	if err != nil {
		return nil, err
	}
	hash := Hash([]byte(body))
	if err := d.store.PutTemplate(hash, []byte(body)); err != nil {
		return nil, fmt.Errorf("failed to store template: %w", err)
	}

	req := engine.DeployRequest{
		StackName: cfg.StackName,
		Tags: map[string]string{
			"service":     cfg.ServiceName,
			"environment": cfg.Environment,
		},
	}
	if len(body) > d.maxBody {
		key := TemplatePrefix + hash + ".json"
		if err := d.uploader.Put(ctx, bucket, key, "application/json", []byte(body)); err != nil {
			return nil, fmt.Errorf("failed to upload template: %w", err)
		}
		req.TemplateURL = d.uploader.URL(bucket, key)
		logger.Debug().Str("url", req.TemplateURL).Msg("template passed by URL")
	} else {
		req.TemplateBody = body
	}

	rec := &types.Deployment{
		ID:           uuid.New().String(),
		StackName:    cfg.StackName,
		Region:       cfg.Region,
		Action:       types.DeploymentActionDeploy,
		Status:       types.DeploymentStatusSubmitted,
		TemplateHash: hash,
		AssetKey:     asset.Key(),
		Resources:    st.Graph.Len(),
		StartedAt:    d.now(),
	}

	action, err := d.engine.Deploy(ctx, req)
	switch {
	case errors.Is(err, engine.ErrNoChanges):
		rec.Status = types.DeploymentStatusUnchanged
		rec.FinishedAt = d.now()
		logger.Info().Msg("stack is up to date")
		return rec, d.store.CreateDeployment(rec)
	case err != nil:
		rec.Status = types.DeploymentStatusFailed
		rec.Reason = err.Error()
		rec.FinishedAt = d.now()
		d.publishFailure(rec)
		if serr := d.store.CreateDeployment(rec); serr != nil {
			logger.Warn().Err(serr).Msg("failed to record deployment")
		}
		return rec, err
	}

	if err := d.store.CreateDeployment(rec); err != nil {
		return rec, fmt.Errorf("failed to record deployment: %w", err)
	}
	d.publisher.Publish(events.New(events.EventStackDeployStarted, string(action), map[string]string{
		"stack":      rec.StackName,
		"deployment": rec.ID,
	}))
	logger.Info().Str("action", string(action)).Str("deployment", rec.ID).Msg("deployment submitted")

	if !wait {
		return rec, nil
	}
	return d.follow(ctx, rec, action)
}

// Destroy deletes the stack. The artifact bucket is retained by the engine;
// the asset bucket is left untouched.
func (d *Deployer) Destroy(ctx context.Context, cfg config.Config, wait bool) (*types.Deployment, error) {
	rec := &types.Deployment{
		ID:        uuid.New().String(),
		StackName: cfg.StackName,
		Region:    cfg.Region,
		Action:    types.DeploymentActionDestroy,
		Status:    types.DeploymentStatusSubmitted,
		StartedAt: d.now(),
	}

	if err := d.engine.Delete(ctx, cfg.StackName); err != nil {
		rec.Status = types.DeploymentStatusFailed
		rec.Reason = err.Error()
		rec.FinishedAt = d.now()
		d.publishFailure(rec)
		if serr := d.store.CreateDeployment(rec); serr != nil {
			logger := log.WithStack(cfg.StackName)
			logger.Warn().Err(serr).Msg("failed to record deployment")
		}
		return rec, err
	}
	if err := d.store.CreateDeployment(rec); err != nil {
		return rec, fmt.Errorf("failed to record deployment: %w", err)
	}
	logger := log.WithDeployment(cfg.StackName, rec.ID)
	logger.Info().Msg("stack deletion submitted")

	if !wait {
		return rec, nil
	}
	return d.follow(ctx, rec, engine.ActionDelete)
}

// Status describes the stack and returns the latest local record for it.
// A record still marked submitted is settled when the stack has reached a
// terminal status since. A missing stack is not an error; state is nil.
func (d *Deployer) Status(ctx context.Context, stackName string) (*engine.StackState, *types.Deployment, error) {
	state, err := d.engine.Describe(ctx, stackName)
	if err != nil && !errors.Is(err, engine.ErrStackNotFound) {
		return nil, nil, err
	}

	rec, rerr := d.store.LatestDeployment(stackName)
	if errors.Is(rerr, storage.ErrNotFound) {
		return state, nil, nil
	}
	if rerr != nil {
		return state, nil, rerr
	}

	if !rec.Finished() {
		switch {
		case state != nil && state.Terminal():
			d.settle(rec, state, nil)
		case state == nil && rec.Action == types.DeploymentActionDestroy:
			d.settle(rec, nil, nil)
		}
		if rec.Finished() {
			if err := d.store.UpdateDeployment(rec); err != nil {
				return state, rec, fmt.Errorf("failed to update deployment: %w", err)
			}
		}
	}
	return state, rec, nil
}

// follow waits for the engine and records the outcome
func (d *Deployer) follow(ctx context.Context, rec *types.Deployment, action engine.Action) (*types.Deployment, error) {
	state, err := d.reconciler.Wait(ctx, rec.StackName, action)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The engine keeps going; the record stays submitted until the next status call
		return rec, err
	}

	d.settle(rec, state, err)
	if uerr := d.store.UpdateDeployment(rec); uerr != nil {
		logger := log.WithDeployment(rec.StackName, rec.ID)
		logger.Warn().Err(uerr).Msg("failed to update deployment")
	}

	if rec.Status == types.DeploymentStatusFailed {
		d.publishFailure(rec)
		if err != nil {
			return rec, err
		}
		return rec, fmt.Errorf("%w: %s ended in %s: %s", ErrDeploymentFailed, rec.StackName, rec.StackStatus, rec.Reason)
	}

	typ := events.EventStackDeployComplete
	if rec.Action == types.DeploymentActionDestroy {
		typ = events.EventStackDestroyed
	}
	d.publisher.Publish(events.New(typ, rec.StackStatus, map[string]string{
		"stack":      rec.StackName,
		"deployment": rec.ID,
	}))
	return rec, nil
}

// settle fills in the terminal fields of a record
func (d *Deployer) settle(rec *types.Deployment, state *engine.StackState, err error) {
	rec.FinishedAt = d.now()
	switch {
	case err != nil:
		rec.Status = types.DeploymentStatusFailed
		rec.Reason = err.Error()
	case state == nil:
		rec.Status = types.DeploymentStatusSucceeded
		rec.StackStatus = "DELETE_COMPLETE"
	default:
		rec.StackStatus = state.Status
		rec.Reason = state.Reason
		rec.Outputs = state.Outputs
		rec.Status = types.DeploymentStatusSucceeded
		if state.Failed() {
			rec.Status = types.DeploymentStatusFailed
		}
	}
}

func (d *Deployer) publishFailure(rec *types.Deployment) {
	d.publisher.Publish(events.New(events.EventStackDeployFailed, rec.Reason, map[string]string{
		"stack":      rec.StackName,
		"deployment": rec.ID,
		"action":     string(rec.Action),
	}))
}

// Hash returns the hex sha256 of a template body
func Hash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
