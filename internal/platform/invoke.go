package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Invoke starts the job (actor) jobID with input as its JSON body. It does not wait
// for the job to finish.
func (c *Client) Invoke(ctx context.Context, jobID string, input any) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("job id is required")
	}
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal job input: %w", err)
	}
	endpoint := c.apiURL(nil, "v2", "acts", actorPath(jobID), "runs")
	if _, err := c.do(ctx, "invoke", http.MethodPost, endpoint, "application/json", body); err != nil {
		return err
	}
	return nil
}

// actorPath converts "owner/name" actor identifiers to the "owner~name" path form.
func actorPath(actorID string) string {
	return strings.ReplaceAll(actorID, "/", "~")
}
