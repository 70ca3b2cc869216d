package objstore

import (
	"fmt"
	"strings"
)

// Key layout:
//
//	jobs/<jobID>/manifest.json      planning manifest
//	jobs/<jobID>/batch-0000.json    batch payloads
//	dispatch/<taskID>/batch.json    single-task dispatch payload
//	pages/<leadID>/page-0000.md     normalized per-page markdown
//	facts/<leadID>.json             first-pass extracted facts
//	results/<jobID>/<taskID>.json   per-task result summary

func ManifestKey(jobID string) string {
	return fmt.Sprintf("jobs/%s/manifest.json", jobID)
}

func BatchKey(jobID string, n int) string {
	return fmt.Sprintf("jobs/%s/batch-%04d.json", jobID, n)
}

func DispatchKey(taskID string) string {
	return fmt.Sprintf("dispatch/%s/batch.json", taskID)
}

func PageKey(leadID string, n int) string {
	return fmt.Sprintf("pages/%s/page-%04d.md", leadID, n)
}

func FactsKey(leadID string) string {
	return fmt.Sprintf("facts/%s.json", leadID)
}

func ResultKey(jobID, taskID string) string {
	return fmt.Sprintf("results/%s/%s.json", jobID, taskID)
}

func ResultsPrefix(jobID string) string {
	return fmt.Sprintf("results/%s/", jobID)
}

// JobIDFromBatchRef extracts the job ID from a planner batch key. Refs
// outside the jobs/ prefix (queue-driven dispatch payloads) have no job
// and return "".
func JobIDFromBatchRef(ref string) string {
	rest, ok := strings.CutPrefix(ref, "jobs/")
	if !ok {
		return ""
	}
	jobID, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return jobID
}
