package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"complaintmap/libs/mapview"

	"github.com/go-pdf/fpdf"
	"github.com/paulmach/orb/geojson"
)

const (
	exportFormatGeoJSON = "geojson"
	exportFormatCSV     = "csv"
	exportFormatPDF     = "pdf"
)

type exportAsset struct {
	ContentType string
	FileName    string
	Body        []byte
}

// buildExport renders the filtered records of a session. Unlocated records
// are kept in CSV and PDF but have no GeoJSON geometry to carry them.
func buildExport(format string, snap mapview.Snapshot, records []mapview.Record, generatedAt time.Time) (exportAsset, error) {
	stamp := generatedAt.UTC().Format("20060102-150405")
	switch format {
	case exportFormatGeoJSON:
		body, err := buildGeoJSON(records)
		if err != nil {
			return exportAsset{}, err
		}
		return exportAsset{ContentType: "application/geo+json", FileName: "complaints-" + stamp + ".geojson", Body: body}, nil
	case exportFormatCSV:
		body, err := buildCSV(records)
		if err != nil {
			return exportAsset{}, err
		}
		return exportAsset{ContentType: "text/csv; charset=utf-8", FileName: "complaints-" + stamp + ".csv", Body: body}, nil
	case exportFormatPDF:
		body, err := buildPDF(snap, records, generatedAt)
		if err != nil {
			return exportAsset{}, err
		}
		return exportAsset{ContentType: "application/pdf", FileName: "complaints-" + stamp + ".pdf", Body: body}, nil
	default:
		return exportAsset{}, &apiError{Status: http.StatusBadRequest, Code: "invalid_format", Message: "format must be geojson, csv or pdf"}
	}
}

func buildGeoJSON(records []mapview.Record) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		if !r.Located() {
			continue
		}
		feature := geojson.NewFeature(r.Point())
		feature.ID = r.ID
		feature.Properties["complaint_type"] = r.Type
		feature.Properties["status"] = r.Status
		feature.Properties["urgency"] = r.Urgency
		feature.Properties["description"] = r.Description
		feature.Properties["fullname"] = r.ReporterName
		feature.Properties["created_at"] = r.CreatedAtRaw
		feature.Properties["heat_weight"] = mapview.UrgencyWeight(r.Urgency)
		if r.ImageURL != "" {
			feature.Properties["image_url"] = r.ImageURL
		}
		fc.Append(feature)
	}
	return fc.MarshalJSON()
}

func buildCSV(records []mapview.Record) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	headers := []string{"id", "created_at", "complaint_type", "status", "urgency", "latitude", "longitude", "fullname", "description", "image_url"}
	if err := writer.Write(headers); err != nil {
		return nil, err
	}
	for _, r := range records {
		lat, lng := "", ""
		if r.Located() {
			lat = strconv.FormatFloat(r.Latitude, 'f', -1, 64)
			lng = strconv.FormatFloat(r.Longitude, 'f', -1, 64)
		}
		row := []string{r.ID, r.CreatedAtRaw, r.Type, r.Status, r.Urgency, lat, lng, r.ReporterName, r.Description, r.ImageURL}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func buildPDF(snap mapview.Snapshot, records []mapview.Record, generatedAt time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 16)
	pdf.Cell(0, 10, "Complaint map view")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(7)
	filter := snap.Filter.Normalized()
	pdf.Cell(0, 7, tr(fmt.Sprintf("Filter: type=%s status=%s urgency=%s", filter.Type, filter.Status, filter.Urgency)))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Complaints: %d of %d (%d on map, %d markers)", snap.Filtered, snap.Total, snap.Located, len(snap.Markers)))
	pdf.Ln(10)

	writeCounts := func(title string, counts map[string]int) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, title)
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		keys := make([]string, 0, len(counts))
		for key := range counts {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if counts[keys[i]] != counts[keys[j]] {
				return counts[keys[i]] > counts[keys[j]]
			}
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			pdf.Cell(0, 6, tr(fmt.Sprintf("- %s: %d", key, counts[key])))
			pdf.Ln(6)
		}
		pdf.Ln(4)
	}

	byType := map[string]int{}
	byUrgency := map[string]int{}
	for _, r := range records {
		byType[labelOrUnknown(r.Type)]++
		byUrgency[labelOrUnknown(r.Urgency)]++
	}
	writeCounts("By type", byType)
	writeCounts("By urgency", byUrgency)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Newest complaints")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	newest := append([]mapview.Record(nil), records...)
	mapview.SortNewestFirst(newest)
	if len(newest) > 25 {
		newest = newest[:25]
	}
	for _, r := range newest {
		line := fmt.Sprintf("%s  #%s  %s / %s / %s", r.CreatedAtRaw, r.ID, labelOrUnknown(r.Type), labelOrUnknown(r.Status), labelOrUnknown(r.Urgency))
		pdf.Cell(0, 5, tr(line))
		pdf.Ln(5)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func labelOrUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
