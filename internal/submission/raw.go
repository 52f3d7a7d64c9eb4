package submission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/errors"
)

// UnknownUser is recorded when a raw inspection carries no userEmail.
const UnknownUser = "unknown"

// SubmitRaw stores an arbitrary inspection object as an audit report.
// userEmail becomes generated_by and the remaining fields are kept verbatim
// as report_data. Summary columns are filled from the payload when it looks
// like a serialized draft.
func (s *Service) SubmitRaw(ctx context.Context, payload []byte) (*model.AuditReport, error) {
	if !gjson.ValidBytes(payload) || !gjson.ParseBytes(payload).IsObject() {
		return nil, errors.Validation("inspection payload must be a JSON object")
	}
	doc := gjson.ParseBytes(payload)

	generatedBy := UnknownUser
	if email := doc.Get("userEmail"); email.Exists() && email.String() != "" {
		generatedBy = email.String()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, errors.Validation("inspection payload must be a JSON object")
	}
	delete(fields, "userEmail")
	reportData, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode report data: %w", err)
	}

	issues := 0
	if doc.Get("hasIssues").Bool() {
		issues = int(doc.Get("racks.#").Int())
	}
	report := model.AuditReport{
		GeneratedBy:    generatedBy,
		Datacenter:     doc.Get("location").String(),
		DataHall:       doc.Get("dataHall").String(),
		IssuesReported: issues,
		State:          model.StateFor(issues),
		WalkthroughID:  int(doc.Get("walkthroughNumber").Int()),
		UserFullName:   model.User{Email: doc.Get("userEmail").String()}.FullName(),
		ReportData:     reportData,
	}

	var stored model.AuditReport
	if err := s.store.Insert(ctx, model.CollectionAuditReports, report, &stored); err != nil {
		return nil, errors.Persistence("create audit report", err)
	}
	s.logger.WithContext(ctx).WithField("report_id", stored.ID).Info("inspection stored")
	return &stored, nil
}
