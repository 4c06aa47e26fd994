package syncstate

import (
	"sort"

	"github.com/emrgen/linksync/internal/model"
)

// CountReadyToSync counts the out-of-sync links of one upstream library.
// links must be the complete, unpaginated link set of the course.
func CountReadyToSync(links []model.PublishableEntityLink, library string) int {
	n := 0
	for i := range links {
		if links[i].UpstreamContextKey == library && IsOutOfSync(&links[i]) {
			n++
		}
	}
	return n
}

// TotalReadyToSync sums the staleness count over every library.
func TotalReadyToSync(summaries []model.PublishableEntityLinkSummary) int {
	n := 0
	for _, s := range summaries {
		n += s.ReadyToSyncCount
	}
	return n
}

// Summarize groups a complete link set by upstream library, ordered by library key.
func Summarize(links []model.PublishableEntityLink) []model.PublishableEntityLinkSummary {
	byLibrary := make(map[string]*model.PublishableEntityLinkSummary)
	for i := range links {
		link := &links[i]
		summary, ok := byLibrary[link.UpstreamContextKey]
		if !ok {
			summary = &model.PublishableEntityLinkSummary{
				UpstreamContextKey:   link.UpstreamContextKey,
				UpstreamContextTitle: link.UpstreamContextTitle,
			}
			byLibrary[link.UpstreamContextKey] = summary
		}

		summary.TotalCount++
		if IsOutOfSync(link) {
			summary.ReadyToSyncCount++
		}
		if link.UpstreamPublishedAt != nil && (summary.LastPublishedAt == nil || link.UpstreamPublishedAt.After(*summary.LastPublishedAt)) {
			published := *link.UpstreamPublishedAt
			summary.LastPublishedAt = &published
		}
	}

	summaries := make([]model.PublishableEntityLinkSummary, 0, len(byLibrary))
	for _, summary := range byLibrary {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpstreamContextKey < summaries[j].UpstreamContextKey
	})

	return summaries
}

// Reconcile overwrites the staleness counts reported by the server with the
// counts recomputed from the complete link set. Libraries present only in the
// link set are appended with a synthesized row.
func Reconcile(server []model.PublishableEntityLinkSummary, links []model.PublishableEntityLink) []model.PublishableEntityLinkSummary {
	computed := Summarize(links)
	byLibrary := make(map[string]model.PublishableEntityLinkSummary, len(computed))
	for _, s := range computed {
		byLibrary[s.UpstreamContextKey] = s
	}

	result := make([]model.PublishableEntityLinkSummary, 0, len(server)+len(computed))
	seen := make(map[string]bool, len(server))
	for _, s := range server {
		seen[s.UpstreamContextKey] = true
		local, ok := byLibrary[s.UpstreamContextKey]
		if !ok {
			s.ReadyToSyncCount = 0
			result = append(result, s)
			continue
		}
		s.ReadyToSyncCount = local.ReadyToSyncCount
		if s.UpstreamContextTitle == "" {
			s.UpstreamContextTitle = local.UpstreamContextTitle
		}
		result = append(result, s)
	}

	for _, s := range computed {
		if !seen[s.UpstreamContextKey] {
			result = append(result, s)
		}
	}

	return result
}
