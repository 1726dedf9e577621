package validation

import (
	"fmt"
	"strings"
)

// vocabulary holds the finding wording for one target kind.
type vocabulary struct {
	status     string
	shortfall  string
	missing    string
	noPrevious string

	// noPreviousUntagged is used with the parent id when the run carries no tag.
	noPreviousUntagged string
}

var vocabularies = map[TargetKind]vocabulary{
	TargetCrawlerExecution: {
		status:     "Execution is not in SUCCEEDED status, crawler status: %s",
		shortfall:  "Crawler returns only %d outputted pages and minimum is %d",
		missing:    "Crawler doesn't have all attributes as previous run, missing %d attributes: %s",
		noPrevious: "Previous execution with tag %s not found.",
	},
	TargetActorRun: {
		status:             "Actor run is not in SUCCEEDED status, run status: %s",
		shortfall:          "Actor run returns only %d items and minimum is %d",
		missing:            "Actor run doesn't have all attributes as previous run, missing %d attributes: %s",
		noPrevious:         "Previous actor run with tag %s not found.",
		noPreviousUntagged: "Previous run of actor %s not found.",
	},
	TargetDataset: {
		shortfall:  "Dataset contains only %d items and minimum is %d",
		missing:    "Dataset doesn't have all attributes as previous run, missing %d attributes: %s",
		noPrevious: "Previous run for dataset %s not found.",
	},
}

func vocabularyFor(kind TargetKind) vocabulary {
	if v, ok := vocabularies[kind]; ok {
		return v
	}
	return vocabularies[TargetCrawlerExecution]
}

func (v vocabulary) statusError(status RunStatus) string {
	return fmt.Sprintf(v.status, status)
}

func (v vocabulary) shortfallError(total, minimum int) string {
	return fmt.Sprintf(v.shortfall, total, minimum)
}

func (v vocabulary) missingError(names []string) string {
	return fmt.Sprintf(v.missing, len(names), strings.Join(names, ","))
}

func (v vocabulary) noPreviousError(tag string) string {
	return fmt.Sprintf(v.noPrevious, tag)
}

func (v vocabulary) noPreviousRunError(run Run, target Target) string {
	if run.Tag == "" && v.noPreviousUntagged != "" {
		parent := run.ParentID
		if parent == "" {
			parent = target.ParentID
		}
		return fmt.Sprintf(v.noPreviousUntagged, parent)
	}
	return v.noPreviousError(run.Tag)
}
