/*
Package deploy submits synthesized stacks to the provisioning engine and
keeps a local record of every operation.

The deploy package is the only place where the pieces of a deployment meet:
the canary code asset, the resource graph, the rendered template, the engine
and the local store. Everything before it is pure synthesis; everything
after it is the engine's business.

# Architecture

	┌──────────────────── DEPLOYMENT FLOW ─────────────────────┐
	│                                                           │
	│  ┌──────────────┐    ┌──────────────┐                    │
	│  │ assets       │───▶│ S3 bucket    │  content-addressed │
	│  │ Package/zip  │    │ assets/<h>.zip│  canary code      │
	│  └──────┬───────┘    └──────────────┘                    │
	│         │ CodeLocation                                    │
	│  ┌──────▼───────┐    ┌──────────────┐                    │
	│  │ stack        │───▶│ template     │  JSON body,        │
	│  │ Synthesize   │    │ Render       │  hash stored       │
	│  └──────────────┘    └──────┬───────┘                    │
	│                             │ body or URL                 │
	│                      ┌──────▼───────┐                    │
	│                      │ engine       │  create / update / │
	│                      │ Deploy       │  delete            │
	│                      └──────┬───────┘                    │
	│                             │                             │
	│                      ┌──────▼───────┐                    │
	│                      │ reconciler   │  poll until        │
	│                      │ Wait         │  terminal status   │
	│                      └──────┬───────┘                    │
	│                             │                             │
	│                      ┌──────▼───────┐                    │
	│                      │ storage      │  deployment record │
	│                      │ (bbolt)      │  + outputs         │
	│                      └──────────────┘                    │
	└───────────────────────────────────────────────────────────┘

# Deployment Records

Each Deploy or Destroy call creates one types.Deployment:

  - submitted: the engine accepted the operation
  - succeeded: the stack reached a *_COMPLETE status without rollback
  - failed: the engine rejected the request, or the stack rolled back
  - unchanged: the template matched the deployed stack

A record left in submitted state (the caller did not wait, or gave up
waiting) is settled by the next Status call once the stack is terminal.

# Templates

Templates up to MaxTemplateBody bytes are sent inline. Larger ones are
uploaded to the asset bucket under templates/<sha256>.json and passed to
the engine by URL. Every submitted template is also kept in the local
store under its hash, so a record can always be traced to the exact
template it deployed.

# Usage

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	eng := engine.NewCloudFormation(awsCfg)
	up := assets.NewS3Uploader(awsCfg)
	d := deploy.NewDeployer(eng, up, store, nil, broker)

	rec, err := d.Deploy(ctx, cfg, true)
	if err != nil {
		return err
	}
	fmt.Println(rec.Outputs[stack.OutputServiceURL])
*/
package deploy
