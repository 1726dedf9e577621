package validation

import (
	"fmt"
	"strings"
)

// Default deep-link bases used in notification emails.
const (
	DefaultLegacyBaseURL = "https://api.apifier.com"
	DefaultAPIBaseURL    = "https://api.apify.com"
)

// LinkBases holds the base URLs used for deep links in notifications.
type LinkBases struct {
	Legacy string
	API    string
}

func (b LinkBases) withDefaults() LinkBases {
	if b.Legacy == "" {
		b.Legacy = DefaultLegacyBaseURL
	}
	if b.API == "" {
		b.API = DefaultAPIBaseURL
	}
	b.Legacy = strings.TrimRight(b.Legacy, "/")
	b.API = strings.TrimRight(b.API, "/")
	return b
}

// BuildEmail renders the fixed notification template for the target kind.
func BuildEmail(to string, target Target, run Run, errs []string, bases LinkBases) Email {
	bases = bases.withDefaults()
	count := len(errs)

	var subjectNoun, source, detailLine, resultsLine string
	switch target.Kind {
	case TargetDataset:
		subjectNoun = "dataset id " + target.ID
		source = "Apify Datasets"
		detailLine = fmt.Sprintf("Execution detail: %s/v2/datasets/%s", bases.API, target.ID)
		resultsLine = fmt.Sprintf("Dataset items: %s/v2/datasets/%s/items?format=json", bases.API, target.ID)
	case TargetActorRun:
		subjectNoun = "actor run id " + target.ID
		source = "Apify Actors"
		detailLine = fmt.Sprintf("Actor run detail: %s/v2/acts/%s/runs/%s", bases.API, target.ParentID, target.ID)
		resultsLine = fmt.Sprintf("Actor run dataset items: %s/v2/datasets/%s/items?format=json", bases.API, run.DatasetID)
	default:
		subjectNoun = "crawler execution id " + target.ID
		source = "Apify crawlers"
		detailLine = fmt.Sprintf("Execution detail: %s/v1/execs/%s", bases.Legacy, target.ID)
		resultsLine = fmt.Sprintf("Execution results: %s/v1/execs/%s/results", bases.Legacy, target.ID)
	}

	var body strings.Builder
	body.WriteString("Hi there,\n\n")
	fmt.Fprintf(&body, "This is automatic notification from %s.\n", source)
	fmt.Fprintf(&body, "We found %d errors in %s.\n\n", count, subjectNoun)
	body.WriteString(detailLine + "\n")
	body.WriteString(resultsLine + "\n\n")
	body.WriteString("Errors log:\n")
	body.WriteString(strings.Join(errs, "\n"))
	body.WriteString("\nHappy Crawling")

	return Email{
		To:      to,
		Subject: fmt.Sprintf("Apify notification: %d errors in %s", count, subjectNoun),
		Text:    body.String(),
	}
}
