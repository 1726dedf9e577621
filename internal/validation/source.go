package validation

import (
	"context"
	"fmt"
)

// describeTarget loads the run metadata behind target. Datasets are reported as a
// synthetic run without status or lineage.
func describeTarget(ctx context.Context, platform Platform, target Target) (Run, error) {
	switch target.Kind {
	case TargetCrawlerExecution:
		run, err := platform.GetExecution(ctx, target.ID)
		if err != nil {
			return Run{}, fmt.Errorf("get execution %s: %w", target.ID, err)
		}
		return run, nil
	case TargetActorRun:
		run, err := platform.GetActorRun(ctx, target.ParentID, target.ID)
		if err != nil {
			return Run{}, fmt.Errorf("get actor run %s: %w", target.ID, err)
		}
		return run, nil
	case TargetDataset:
		ds, err := platform.GetDataset(ctx, target.ID)
		if err != nil {
			return Run{}, fmt.Errorf("get dataset %s: %w", target.ID, err)
		}
		return Run{ID: ds.ID, DatasetID: ds.ID}, nil
	default:
		return Run{}, fmt.Errorf("unknown target kind %q", target.Kind)
	}
}

// pagerFor returns the result listing of run for the given kind.
func pagerFor(platform Platform, kind TargetKind, run Run) PageFunc {
	switch kind {
	case TargetCrawlerExecution:
		return func(ctx context.Context, offset, limit int) (Page, error) {
			return platform.ListExecutionResults(ctx, run.ID, offset, limit)
		}
	default:
		datasetID := run.DatasetID
		return func(ctx context.Context, offset, limit int) (Page, error) {
			if datasetID == "" {
				return Page{}, fmt.Errorf("run %s has no default dataset", run.ID)
			}
			return platform.ListDatasetItems(ctx, datasetID, offset, limit)
		}
	}
}

// historyFor lists the runs sharing target's parent, most recent first.
func historyFor(ctx context.Context, platform Platform, target Target) ([]Run, error) {
	switch target.Kind {
	case TargetCrawlerExecution:
		runs, err := platform.ListExecutions(ctx, target.ParentID)
		if err != nil {
			return nil, fmt.Errorf("list executions of crawler %s: %w", target.ParentID, err)
		}
		return runs, nil
	case TargetActorRun:
		runs, err := platform.ListActorRuns(ctx, target.ParentID)
		if err != nil {
			return nil, fmt.Errorf("list runs of actor %s: %w", target.ParentID, err)
		}
		return runs, nil
	default:
		return nil, nil
	}
}
