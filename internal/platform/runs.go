package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

const (
	legacyPaginationPrefix = "X-Apifier-Pagination"
	apiPaginationPrefix    = "X-Apify-Pagination"
)

type executionDTO struct {
	ID        string    `json:"_id"`
	ActID     string    `json:"actId"`
	Status    string    `json:"status"`
	Tag       string    `json:"tag"`
	StartedAt time.Time `json:"startedAt"`
}

func (e executionDTO) toRun() validation.Run {
	return validation.Run{
		ID:        e.ID,
		ParentID:  e.ActID,
		Status:    validation.RunStatus(e.Status),
		Tag:       e.Tag,
		StartedAt: e.StartedAt,
	}
}

type actorRunDTO struct {
	ID               string    `json:"id"`
	ActID            string    `json:"actId"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"startedAt"`
	DefaultDatasetID string    `json:"defaultDatasetId"`
	ActorTaskID      string    `json:"actorTaskId"`
}

// toRun uses the task id as the lineage tag. Both the single-run and list-runs
// responses carry it; runs started directly on the actor share the empty tag.
func (r actorRunDTO) toRun() validation.Run {
	return validation.Run{
		ID:        r.ID,
		ParentID:  r.ActID,
		Status:    validation.RunStatus(r.Status),
		Tag:       r.ActorTaskID,
		StartedAt: r.StartedAt,
		DatasetID: r.DefaultDatasetID,
	}
}

// GetExecution fetches a legacy crawler execution.
func (c *Client) GetExecution(ctx context.Context, executionID string) (validation.Run, error) {
	resp, err := c.do(ctx, "get_execution", http.MethodGet, c.legacyURL(nil, "v1", "execs", executionID), "", nil)
	if err != nil {
		if IsNotFound(err) {
			return validation.Run{}, fmt.Errorf("%w: execution %s", validation.ErrRunNotFound, executionID)
		}
		return validation.Run{}, err
	}
	if len(bytes.TrimSpace(resp.body)) == 0 || bytes.Equal(bytes.TrimSpace(resp.body), []byte("null")) {
		return validation.Run{}, fmt.Errorf("%w: execution %s", validation.ErrRunNotFound, executionID)
	}
	var dto executionDTO
	if err := json.Unmarshal(resp.body, &dto); err != nil {
		return validation.Run{}, fmt.Errorf("platform get_execution: decode response: %w", err)
	}
	return dto.toRun(), nil
}

// ListExecutionResults fetches one page of simplified execution results.
func (c *Client) ListExecutionResults(
	ctx context.Context,
	executionID string,
	offset, limit int,
) (validation.Page, error) {
	query := pageQuery(offset, limit, map[string]string{"simplified": "1"})
	var items []any
	header, err := c.getJSON(ctx, "list_execution_results", c.legacyURL(query, "v1", "execs", executionID, "results"), &items)
	if err != nil {
		return validation.Page{}, err
	}
	return pageFromHeaders(header, legacyPaginationPrefix, offset, items), nil
}

// ListExecutions lists a crawler's executions, most recent first.
func (c *Client) ListExecutions(ctx context.Context, crawlerID string) ([]validation.Run, error) {
	query := url.Values{"desc": {"1"}}
	var dtos []executionDTO
	if _, err := c.getJSON(ctx, "list_executions", c.legacyURL(query, "v1", "crawlers", crawlerID, "execs"), &dtos); err != nil {
		return nil, err
	}
	runs := make([]validation.Run, 0, len(dtos))
	for _, dto := range dtos {
		runs = append(runs, dto.toRun())
	}
	return runs, nil
}

// GetDataset fetches dataset metadata.
func (c *Client) GetDataset(ctx context.Context, datasetID string) (validation.Dataset, error) {
	var envelope struct {
		Data validation.Dataset `json:"data"`
	}
	if _, err := c.getJSON(ctx, "get_dataset", c.apiURL(nil, "v2", "datasets", datasetID), &envelope); err != nil {
		if IsNotFound(err) {
			return validation.Dataset{}, fmt.Errorf("%w: dataset %s", validation.ErrRunNotFound, datasetID)
		}
		return validation.Dataset{}, err
	}
	if envelope.Data.ID == "" {
		envelope.Data.ID = datasetID
	}
	return envelope.Data, nil
}

// ListDatasetItems fetches one page of clean dataset items.
func (c *Client) ListDatasetItems(ctx context.Context, datasetID string, offset, limit int) (validation.Page, error) {
	query := pageQuery(offset, limit, map[string]string{"clean": "1"})
	var items []any
	header, err := c.getJSON(ctx, "list_dataset_items", c.apiURL(query, "v2", "datasets", datasetID, "items"), &items)
	if err != nil {
		return validation.Page{}, err
	}
	return pageFromHeaders(header, apiPaginationPrefix, offset, items), nil
}

// GetActorRun fetches an actor run.
func (c *Client) GetActorRun(ctx context.Context, actorID, runID string) (validation.Run, error) {
	var envelope struct {
		Data actorRunDTO `json:"data"`
	}
	endpoint := c.apiURL(nil, "v2", "acts", actorPath(actorID), "runs", runID)
	if _, err := c.getJSON(ctx, "get_actor_run", endpoint, &envelope); err != nil {
		if IsNotFound(err) {
			return validation.Run{}, fmt.Errorf("%w: actor run %s", validation.ErrRunNotFound, runID)
		}
		return validation.Run{}, err
	}
	run := envelope.Data.toRun()
	if run.ParentID == "" {
		run.ParentID = actorID
	}
	return run, nil
}

// ListActorRuns lists an actor's runs, most recent first.
func (c *Client) ListActorRuns(ctx context.Context, actorID string) ([]validation.Run, error) {
	var envelope struct {
		Data struct {
			Items []actorRunDTO `json:"items"`
		} `json:"data"`
	}
	query := url.Values{"desc": {"1"}}
	endpoint := c.apiURL(query, "v2", "acts", actorPath(actorID), "runs")
	if _, err := c.getJSON(ctx, "list_actor_runs", endpoint, &envelope); err != nil {
		return nil, err
	}
	runs := make([]validation.Run, 0, len(envelope.Data.Items))
	for _, dto := range envelope.Data.Items {
		runs = append(runs, dto.toRun())
	}
	return runs, nil
}
