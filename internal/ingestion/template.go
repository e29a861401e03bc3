package ingestion

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	templateSheet    = "Template"
	informationSheet = "Information"
)

// TemplateFileName is the download name of a template.
func TemplateFileName(importer Importer, format Format) string {
	return "template_" + importer.Name + format.Extension()
}

// GenerateTemplate renders a blank upload template for importer.
func GenerateTemplate(importer Importer, format Format) ([]byte, error) {
	switch format {
	case FormatDelimited:
		return templateCSV(importer)
	case FormatSpreadsheet:
		return templateXLSX(importer)
	case FormatStructured:
		return templateJSON(importer)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

func templateHeaders(importer Importer) []string {
	fields := importer.Schema.Fields()
	headers := make([]string, len(fields))
	for i, field := range fields {
		header := field.DisplayLabel()
		if field.Required {
			header += requiredMarker
		}
		headers[i] = header
	}
	return headers
}

func templateCSV(importer Importer) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(byteOrderMark)
	writer := csv.NewWriter(&buf)
	if err := writer.Write(templateHeaders(importer)); err != nil {
		return nil, fmt.Errorf("write csv template: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv template: %w", err)
	}
	return buf.Bytes(), nil
}

func templateXLSX(importer Importer) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return nil, fmt.Errorf("rename template sheet: %w", err)
	}
	headers := templateHeaders(importer)
	row := make([]any, len(headers))
	for i, header := range headers {
		row[i] = header
	}
	if err := f.SetSheetRow(templateSheet, "A1", &row); err != nil {
		return nil, fmt.Errorf("write template headers: %w", err)
	}

	if _, err := f.NewSheet(informationSheet); err != nil {
		return nil, fmt.Errorf("create information sheet: %w", err)
	}
	if err := f.SetSheetRow(informationSheet, "A1", &[]any{"Field", "Type", "Required"}); err != nil {
		return nil, fmt.Errorf("write information headers: %w", err)
	}
	for i, field := range importer.Schema.Fields() {
		required := "No"
		if field.Required {
			required = "Yes"
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(informationSheet, cell, &[]any{field.DisplayLabel(), string(field.Kind), required}); err != nil {
			return nil, fmt.Errorf("write information row: %w", err)
		}
	}

	if idx, err := f.GetSheetIndex(templateSheet); err == nil {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx template: %w", err)
	}
	return buf.Bytes(), nil
}

type templateField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type templateInfo struct {
	Importer string          `json:"importer"`
	Fields   []templateField `json:"fields"`
}

type templateDocument struct {
	TemplateInfo templateInfo     `json:"template_info"`
	Data         []map[string]any `json:"data"`
}

func templateJSON(importer Importer) ([]byte, error) {
	fields := importer.Schema.Fields()
	doc := templateDocument{
		TemplateInfo: templateInfo{
			Importer: importer.DisplayLabel(),
			Fields:   make([]templateField, 0, len(fields)),
		},
	}
	example := make(map[string]any, len(fields))
	for _, field := range fields {
		doc.TemplateInfo.Fields = append(doc.TemplateInfo.Fields, templateField{
			Name:     field.Name,
			Label:    field.DisplayLabel(),
			Type:     string(field.Kind),
			Required: field.Required,
		})
		example[field.Name] = "example_" + string(field.Kind)
	}
	doc.Data = []map[string]any{example}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json template: %w", err)
	}
	return out, nil
}
