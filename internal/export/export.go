// Package export renders impact reports to spreadsheets and moves rule
// sets in and out as YAML.
package export

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/decision-engine/internal/model"
)

// WriteImpactReportXLSX writes a dry-run impact report as a spreadsheet for
// the reviewer who wants it next to their ledger.
func WriteImpactReportXLSX(report *model.ImpactReport, path string) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Impact")
	if err != nil {
		return eris.Wrap(err, "export: add impact sheet")
	}
	addKV := func(key string, value any) {
		row := sheet.AddRow()
		row.AddCell().SetString(key)
		switch v := value.(type) {
		case string:
			row.AddCell().SetString(v)
		case int:
			row.AddCell().SetInt(v)
		case float64:
			row.AddCell().SetFloat(v)
		case bool:
			row.AddCell().SetBool(v)
		}
	}
	addKV("Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	addKV("Sample size", report.SampleSize)
	addKV("Affected decisions", report.AffectedCount)
	addKV("Automation rate before", report.AutomationRateBefore)
	addKV("Automation rate after", report.AutomationRateAfter)
	addKV("Delta", report.Delta)
	addKV("Low confidence", report.LowConfidence)

	deltas, err := f.AddSheet("Route Deltas")
	if err != nil {
		return eris.Wrap(err, "export: add deltas sheet")
	}
	header := deltas.AddRow()
	header.AddCell().SetString("Route")
	header.AddCell().SetString("Net change")

	routes := make([]string, 0, len(report.RouteDeltas))
	for r := range report.RouteDeltas {
		routes = append(routes, string(r))
	}
	sort.Strings(routes)
	for _, r := range routes {
		row := deltas.AddRow()
		row.AddCell().SetString(r)
		row.AddCell().SetInt(report.RouteDeltas[model.Route(r)])
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// ruleFile is the YAML document shape for rule set export and import.
type ruleFile struct {
	VersionID int64        `yaml:"version_id,omitempty"`
	Author    string       `yaml:"author,omitempty"`
	Rules     []model.Rule `yaml:"rules"`
}

// WriteVersionYAML serializes a rule version for review or backup.
func WriteVersionYAML(v *model.RuleVersion, w io.Writer) error {
	doc := ruleFile{VersionID: v.VersionID, Author: v.Author, Rules: v.Rules}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "export: encode rules yaml")
	}
	return eris.Wrap(enc.Close(), "export: close yaml encoder")
}

// WriteVersionYAMLFile is WriteVersionYAML to a path.
func WriteVersionYAMLFile(v *model.RuleVersion, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck
	return WriteVersionYAML(v, f)
}

// ReadRulesYAML parses and validates a rule list from YAML. Patterns must
// be unique: duplicate patterns would make first-match ordering depend on
// file order, which is how shadowed rules sneak in.
func ReadRulesYAML(r io.Reader) ([]model.Rule, error) {
	var doc ruleFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "export: decode rules yaml")
	}

	seen := make(map[string]bool, len(doc.Rules))
	for i, rule := range doc.Rules {
		if rule.Pattern == "" || rule.Account == "" {
			return nil, eris.Errorf("export: rule %d missing pattern or account", i)
		}
		if seen[rule.Pattern] {
			return nil, eris.Errorf("export: duplicate pattern %q", rule.Pattern)
		}
		seen[rule.Pattern] = true
		if rule.ID == "" {
			doc.Rules[i].ID = fmt.Sprintf("import-%d", i+1)
		}
	}
	return doc.Rules, nil
}

// ReadRulesYAMLFile is ReadRulesYAML from a path.
func ReadRulesYAMLFile(path string) ([]model.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadRulesYAML(f)
}
