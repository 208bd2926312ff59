// Package report writes batch provisioning outcomes as CSV for the
// operators who review a term's rollout.
package report

import (
	"encoding/csv"
	"errors"
	"io"
	"slices"
	"strconv"
	"strings"

	"mediasite-provisioning/internal/provisioning"
)

// Keep header order stable; the operators' spreadsheet reads columns by position.
var header = []string{
	"COURSE_ID",
	"ACCOUNT_ID",
	"STATUS",
	"STATE",
	"CATEGORY",
	"FAILED_STEP",
	"CATALOG_ID",
	"CATALOG_URL",
	"FOLDER_IDS",
	"ROLE_IDS",
	"ERROR",
}

// Summary counts a batch.
type Summary struct {
	Total  int
	Failed int
}

// WriteCSV writes one row per outcome in input order.
func WriteCSV(w io.Writer, outcomes []provisioning.Outcome) (Summary, error) {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	var sum Summary
	if err := cw.Write(header); err != nil {
		return sum, err
	}
	for _, o := range outcomes {
		sum.Total++
		if o.Err != nil {
			sum.Failed++
		}
		if err := cw.Write(row(o)); err != nil {
			return sum, err
		}
	}
	cw.Flush()
	return sum, cw.Error()
}

func row(o provisioning.Outcome) []string {
	status := "ok"
	category, step, message := "", "", ""
	if o.Err != nil {
		status = "failed"
		category = "unknown error"
		message = oneLine(o.Err.Error())
		var pe *provisioning.Error
		if errors.As(o.Err, &pe) {
			category = pe.Category()
			step = pe.Step.String()
			if pe.Err != nil {
				message = oneLine(pe.Err.Error())
			}
		}
	}

	state := provisioning.Failed.String()
	var catalogID, catalogURL, folders, roles string
	if res := o.Result; res != nil {
		state = res.State.String()
		catalogID = res.CatalogID
		catalogURL = res.CatalogURL
		folders = strings.Join(res.FolderIDs, " | ")
		roles = joinRoles(res.Roles)
	}

	return []string{
		strconv.FormatInt(o.Request.CourseID, 10),
		strconv.FormatInt(o.Request.AccountID, 10),
		status,
		state,
		category,
		step,
		catalogID,
		catalogURL,
		folders,
		roles,
		message,
	}
}

// joinRoles renders key=role id pairs sorted by key.
func joinRoles(roles map[string]string) string {
	if len(roles) == 0 {
		return ""
	}
	entries := make([]string, 0, len(roles))
	for entry := range roles {
		entries = append(entries, entry)
	}
	slices.Sort(entries)
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e+"="+roles[e])
	}
	return strings.Join(parts, " | ")
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
