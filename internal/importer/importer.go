// Package importer seeds the lead table from CSV exports of upstream
// prospecting tools.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/db"
	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/store"
)

// leadColumns is the column order used on the bulk COPY path.
var leadColumns = []string{
	"id", "name", "website", "city", "state", "business_type",
	"email", "phone", "review_count", "rating", "pipeline_status", "scrape_ref",
}

// pooled is implemented by stores that expose direct pool access for
// the COPY-based bulk path.
type pooled interface {
	Pool() db.Pool
}

// ImportCSV reads leads from r and writes them to the store. A header
// row is required; columns are matched by name and unknown columns are
// ignored. Rows without a name are skipped. Returns the number of leads
// written.
func ImportCSV(ctx context.Context, st store.Store, r io.Reader) (int, error) {
	leads, skipped, err := parseCSV(r)
	if err != nil {
		return 0, err
	}

	var written int
	if ps, ok := st.(pooled); ok && len(leads) > 1 {
		written, err = bulkInsert(ctx, ps.Pool(), leads)
	} else {
		for i := range leads {
			if ierr := st.InsertLead(ctx, &leads[i]); ierr != nil {
				err = ierr
				break
			}
			written++
		}
	}
	if err != nil {
		return written, eris.Wrap(err, "importer: write leads")
	}

	zap.L().Info("lead import complete",
		zap.Int("written", written),
		zap.Int("skipped_rows", skipped))
	return written, nil
}

func bulkInsert(ctx context.Context, pool db.Pool, leads []model.Lead) (int, error) {
	rows := make([][]any, len(leads))
	for i, l := range leads {
		rows[i] = []any{
			l.ID, l.Name, l.Website, l.City, l.State, l.BusinessType,
			l.Email, l.Phone, l.ReviewCount, l.Rating, string(l.Status), l.ScrapeRef,
		}
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      leadColumns,
		ConflictKeys: []string{"id"},
		UpdateCols: []string{
			"name", "website", "city", "state", "business_type",
			"email", "phone", "review_count", "rating", "scrape_ref",
		},
	}, rows)
	return int(n), err
}

func parseCSV(r io.Reader) ([]model.Lead, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, eris.Wrap(err, "importer: read header")
	}
	idx := map[string]int{}
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := idx["name"]; !ok {
		return nil, 0, eris.New("importer: csv missing required column: name")
	}

	field := func(record []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var leads []model.Lead
	var skipped int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, eris.Wrap(err, "importer: read row")
		}

		name := field(record, "name")
		if name == "" {
			skipped++
			continue
		}

		lead := model.Lead{
			ID:           field(record, "id"),
			Name:         name,
			Website:      normalizeWebsite(field(record, "website")),
			City:         field(record, "city"),
			State:        strings.ToUpper(field(record, "state")),
			BusinessType: strings.ToLower(field(record, "business_type")),
			Email:        field(record, "email"),
			Phone:        field(record, "phone"),
			ScrapeRef:    field(record, "scrape_ref"),
			Status:       model.StatusIdle,
		}
		if v := field(record, "review_count"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				lead.ReviewCount = n
			}
		}
		if v := field(record, "rating"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				lead.Rating = f
			}
		}
		if lead.ID == "" {
			lead.ID = deriveID(lead)
		}
		leads = append(leads, lead)
	}
	return leads, skipped, nil
}

// deriveID gives a lead a stable identity so re-importing the same
// export upserts instead of duplicating.
func deriveID(l model.Lead) string {
	if l.Website != "" {
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(l.Website)).String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(l.Name+"|"+l.City+"|"+l.State)).String()
}

func normalizeWebsite(site string) string {
	if site == "" {
		return ""
	}
	if !strings.HasPrefix(site, "http://") && !strings.HasPrefix(site, "https://") {
		site = "https://" + site
	}
	return strings.TrimSuffix(site, "/")
}
